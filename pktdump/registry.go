package pktdump

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/yanet-platform/pktstack/dissect"
	"github.com/yanet-platform/pktstack/protocols"
)

// NewRegistry builds the built-in catalog extended with the bindings and
// link types of cfg.
func NewRegistry(cfg *Config, log *zap.SugaredLogger) (*dissect.Registry, error) {
	registry, err := protocols.NewCatalog(dissect.WithLog(log))
	if err != nil {
		return nil, err
	}

	for idx, b := range cfg.Bindings {
		match := dissect.Equal(b.Value)
		if b.Range != nil {
			match = dissect.Range(b.Range[0], b.Range[1])
		}

		if err := registry.Bind(b.Owner, b.Field, match, b.Target); err != nil {
			return nil, fmt.Errorf("binding #%d: %w", idx, err)
		}
	}

	for linkType, name := range cfg.LinkTypes {
		if err := registry.SetLink(linkType, name); err != nil {
			return nil, err
		}
	}

	if conflicts := registry.Conflicts(); len(conflicts) > 0 {
		log.Warnw("some configured bindings are shadowed by earlier ones", zap.Int("count", len(conflicts)))
	}

	return registry, nil
}
