package posters

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/tokenledger/internal/repos/posters"
)

func (r *postersRepo) GetTemplate(tx *sql.Tx, id uuid.UUID) (posters.Template, error) {
	var (
		tpl  posters.Template
		spec []byte
	)

	err := tx.QueryRow(`
		SELECT id, name, tier, active, template
		FROM poster_templates
		WHERE id = $1
	`, id).Scan(&tpl.ID, &tpl.Name, &tpl.Tier, &tpl.Active, &spec)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return posters.Template{}, posters.ErrTemplateNotFound
		}

		return posters.Template{}, fmt.Errorf("get poster template: %w", err)
	}

	tpl.Spec = spec

	return tpl, nil
}
