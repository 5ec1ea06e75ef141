package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed seed/categories.yaml
var categoriesYAML []byte

// CategorySeed は初期投入するカテゴリ定義を表す。
type CategorySeed struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type categorySeedFile struct {
	Categories []CategorySeed `yaml:"categories"`
}

// ParseCategorySeeds はYAML形式のカテゴリ定義を解析する。
// 名前が空の定義はエラーとする。
func ParseCategorySeeds(data []byte) ([]CategorySeed, error) {
	var f categorySeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse category seed: %w", err)
	}
	for i, c := range f.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("category seed #%d has empty name", i)
		}
	}
	return f.Categories, nil
}

// DefaultCategorySeeds は埋め込みのカテゴリ定義を返す。
func DefaultCategorySeeds() ([]CategorySeed, error) {
	return ParseCategorySeeds(categoriesYAML)
}

// SeedCategories はカテゴリ定義をcategoriesテーブルに投入する。
// 同名のカテゴリが既に存在する場合は説明のみ更新する。投入件数を返す。
func SeedCategories(ctx context.Context, db *sql.DB, seeds []CategorySeed) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO categories (name, description)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description`

	for _, s := range seeds {
		if _, err := tx.ExecContext(ctx, query, s.Name, s.Description); err != nil {
			return 0, fmt.Errorf("failed to seed category %q: %w", s.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit seed transaction: %w", err)
	}
	return len(seeds), nil
}
