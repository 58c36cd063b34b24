package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/taskroute/engine/internal/domain"
)

// catalogFile is the on-disk shape of a worker catalog.
type catalogFile struct {
	Workers []domain.WorkerProfile `yaml:"workers"`
}

// LoadCatalog reads a YAML worker catalog and builds a Registry from it.
// Catalog problems are fatal at startup: the process must not run with an
// invalid registry.
func LoadCatalog(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrCatalogInvalid.Code, "read worker catalog", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, domain.WrapEngineError(domain.ErrCatalogInvalid.Code, "parse worker catalog YAML", err)
	}

	if len(file.Workers) == 0 {
		return nil, domain.NewEngineError(
			domain.ErrCatalogInvalid.Code,
			fmt.Sprintf("worker catalog %s declares no workers", path),
		)
	}

	for i := range file.Workers {
		applyProfileDefaults(&file.Workers[i])
	}

	return Load(file.Workers)
}

func applyProfileDefaults(p *domain.WorkerProfile) {
	if p.CostHint == "" {
		p.CostHint = domain.CostStandard
	}
}
