package fieldcrypt

import (
	"context"
	"maps"

	"golang.org/x/sync/errgroup"
)

// DecryptionErrorMarker replaces a field that could not be decrypted in batch results.
const DecryptionErrorMarker = "[DECRYPTION_ERROR]"

// FieldError reports a single field that failed during DecryptFields.
type FieldError struct {
	Field string
	Err   error
}

// EncryptFields returns a copy of record with the named string fields encrypted.
// Fields are encrypted concurrently and the operation is all-or-nothing: on any
// failure no partially encrypted record is returned. Absent and non-string fields
// are left as they are.
func (e *Engine) EncryptFields(ctx context.Context, record map[string]any, fields []string) (map[string]any, error) {
	out := maps.Clone(record)
	if out == nil {
		out = map[string]any{}
	}

	type target struct {
		field string
		value string
	}
	var targets []target
	for _, f := range fields {
		if v, ok := record[f].(string); ok {
			targets = append(targets, target{field: f, value: v})
		}
	}

	results := make([]string, len(targets))
	g, ctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			enc, err := e.EncryptField(t.value)
			if err != nil {
				return err
			}
			results[i] = enc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, t := range targets {
		out[t.field] = results[i]
	}
	return out, nil
}

// DecryptFields returns a copy of record with the named fields decrypted. A field
// that fails is replaced by DecryptionErrorMarker and reported; the rest of the record
// is still returned. A value with four colon segments is always decrypted, so a damaged
// token is marked rather than returned raw. Anything else is legacy plaintext and
// passes through unchanged.
func (e *Engine) DecryptFields(ctx context.Context, record map[string]any, fields []string) (map[string]any, []FieldError) {
	out := maps.Clone(record)
	if out == nil {
		out = map[string]any{}
	}

	var failures []FieldError
	for _, f := range fields {
		v, ok := record[f].(string)
		if !ok || (v != EmptyMarker && !hasTokenShape(v)) {
			continue
		}
		plain, err := e.decrypt(ctx, v)
		if err != nil {
			out[f] = DecryptionErrorMarker
			failures = append(failures, FieldError{Field: f, Err: err})
			continue
		}
		out[f] = plain
	}
	return out, failures
}
