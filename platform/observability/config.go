package observability

import (
	"errors"
	"fmt"
)

// Config настройки OpenTelemetry для order и inventory
type Config struct {
	// Enabled false: noop providers, propagator всё равно ставится
	Enabled bool
	// OTLPEndpoint host:port OTLP gRPC collector
	OTLPEndpoint string
	// SamplingRatio доля семплируемых корневых трасс; дочерние следуют решению родителя
	SamplingRatio float64
	ServiceName   string
	// DeploymentEnvironment значение APP_ENV (local, docker)
	DeploymentEnvironment string
	ServiceVersion        string
}

// Validate проверяет только то, что нужно для экспорта
func (c Config) Validate() error {
	if c.ServiceName == "" {
		return errors.New("observability: service name is required")
	}
	if !c.Enabled {
		return nil
	}
	var errs []error
	if c.OTLPEndpoint == "" {
		errs = append(errs, errors.New("observability: OTLP endpoint is required when enabled"))
	}
	if c.SamplingRatio < 0 || c.SamplingRatio > 1 {
		errs = append(errs, fmt.Errorf("observability: sampling ratio %v is outside [0, 1]", c.SamplingRatio))
	}
	return errors.Join(errs...)
}
