package artifact

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/chatshape/internal/failure"
)

//go:embed schema/spec.cue
var specSchema string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func loadSpecSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(specSchema, cue.Filename("spec.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile spec schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Spec"))
	})
	return schemaCtx, schemaDef, schemaErr
}

// ValidateSpec checks a spec against the embedded CUE schema.
// Failures are CONFIGURATION_ERRORs naming the first offending field.
func ValidateSpec(s *Spec) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode spec: %w", err)
	}
	return validateSpecJSON(raw)
}

func validateSpecJSON(raw []byte) error {
	ctx, def, err := loadSpecSchema()
	if err != nil {
		return err
	}
	data := ctx.CompileBytes(raw, cue.Filename("spec.json"))
	if err := data.Err(); err != nil {
		return failure.Configuration("distribution spec is not valid JSON", cueerrors.Details(err, nil))
	}
	if err := def.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return failure.Configuration("distribution spec failed validation", firstCUEError(err))
	}
	return nil
}

func firstCUEError(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	return errs[0].Error()
}
