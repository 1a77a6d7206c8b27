package persist

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/l1jgo/modscript/internal/vars"
)

// GlobalScope is the scope name of the plugin-wide variable store.
const GlobalScope = "global"

// EntityScope names the store of a spawned entity by its stable spawn label.
func EntityScope(label string) string { return "entity:" + label }

// VarsRepo stores script variable snapshots, one row per key, with the value
// JSON-encoded next to its type tag.
type VarsRepo struct {
	db *DB
}

func NewVarsRepo(db *DB) *VarsRepo {
	return &VarsRepo{db: db}
}

// SaveScope replaces every stored key of scope with values in one transaction.
func (r *VarsRepo) SaveScope(ctx context.Context, scope string, values map[string]vars.Value) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("vars begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM script_vars WHERE scope = $1`, scope); err != nil {
		return fmt.Errorf("vars clear %s: %w", scope, err)
	}

	batch := &pgx.Batch{}
	for key, v := range values {
		raw, err := EncodeValue(v)
		if err != nil {
			return fmt.Errorf("vars encode %s/%s: %w", scope, key, err)
		}
		batch.Queue(
			`INSERT INTO script_vars (scope, key, tag, value) VALUES ($1, $2, $3, $4)`,
			scope, key, v.Tag.String(), raw,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("vars insert %s: %w", scope, err)
		}
	}
	return tx.Commit(ctx)
}

// LoadScope returns every stored value of scope.
func (r *VarsRepo) LoadScope(ctx context.Context, scope string) (map[string]vars.Value, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT key, tag, value FROM script_vars WHERE scope = $1`, scope)
	if err != nil {
		return nil, fmt.Errorf("vars query %s: %w", scope, err)
	}
	defer rows.Close()

	out := make(map[string]vars.Value)
	for rows.Next() {
		var (
			key, tag string
			raw      []byte
		)
		if err := rows.Scan(&key, &tag, &raw); err != nil {
			return nil, fmt.Errorf("vars scan %s: %w", scope, err)
		}
		v, err := DecodeValue(tag, raw)
		if err != nil {
			return nil, fmt.Errorf("vars decode %s/%s: %w", scope, key, err)
		}
		out[key] = v
	}
	return out, rows.Err()
}

// EncodeValue renders v as JSON. Directions are stored by name.
func EncodeValue(v vars.Value) ([]byte, error) {
	if d, ok := v.V.(vars.Direction); ok {
		return json.Marshal(d.String())
	}
	return json.Marshal(v.V)
}

// DecodeValue parses a stored value and checks it against its tag.
func DecodeValue(tag string, raw []byte) (vars.Value, error) {
	t, err := vars.ParseTag(tag)
	if err != nil {
		return vars.Value{}, err
	}
	var x any
	if err := json.Unmarshal(raw, &x); err != nil {
		return vars.Value{}, err
	}
	return vars.Convert(t, x)
}
