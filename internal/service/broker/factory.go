package broker

import (
	"fmt"

	drepo "TradeSentinel/internal/domain/repository"
	"TradeSentinel/pkg/logger"
)

const (
	TypeGateway = "gateway"
	TypePaper   = "paper"
)

// NewFactory returns the session factory for the configured broker type.
func NewFactory(kind string, gw GatewayConfig, paper PaperConfig, log *logger.Logger) (drepo.SessionFactory, error) {
	switch kind {
	case TypeGateway:
		return drepo.SessionFactoryFunc(func() drepo.BrokerSession {
			return NewGateway(gw, log)
		}), nil
	case TypePaper, "":
		return NewPaperAccount(paper), nil
	default:
		return nil, fmt.Errorf("unknown broker type %q", kind)
	}
}
