package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/texturesets/internal/ctxlog"
)

// ValidateRegistry instantiates every module with empty parameters and checks
// the resulting signatures. Factories that insist on parameters are skipped,
// since their signature can only be checked against a real invocation.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var errs []string

	for _, id := range r.IDs() {
		entry, _ := r.Resolve(id)
		mod, err := entry.Factory(nil)
		if err != nil {
			logger.Debug("Module requires parameters, skipping signature check.", "module", id, "reason", err)
			continue
		}
		if mod == nil {
			errs = append(errs, fmt.Sprintf("module '%s': factory returned nil without an error", id))
			continue
		}
		if err := mod.Signature().Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("module '%s': %v", id, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	logger.Debug("Registry validation passed.", "modules", r.Len())
	return nil
}
