package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/caffe/internal/domain"
)

const dishColumns = `id, name, description, price_minor, image_url, weight, preparation_time, category_id, created_at, updated_at`

type categoryRepository struct {
	db *sql.DB
}

// NewCategoryRepository создаёт PostgreSQL-реализацию CategoryRepository.
func NewCategoryRepository(store *Store) domain.CategoryRepository {
	return &categoryRepository{db: store.DB()}
}

func (r *categoryRepository) Create(ctx context.Context, category domain.Category) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, description) VALUES ($1,$2,$3)
	`, category.ID, category.Name, category.Description); err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (r *categoryRepository) Get(ctx context.Context, id string) (domain.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var category domain.Category
	err := r.db.QueryRowContext(ctx, `SELECT id, name, description FROM categories WHERE id = $1`, id).
		Scan(&category.ID, &category.Name, &category.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	if err != nil {
		return domain.Category{}, fmt.Errorf("select category: %w", err)
	}
	return category, nil
}

func (r *categoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT id, name, description FROM categories ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Category, 0)
	for rows.Next() {
		var category domain.Category
		if err := rows.Scan(&category.ID, &category.Name, &category.Description); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		result = append(result, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return result, nil
}

type dishRepository struct {
	db *sql.DB
}

// NewDishRepository создаёт PostgreSQL-реализацию DishRepository.
func NewDishRepository(store *Store) domain.DishRepository {
	return &dishRepository{db: store.DB()}
}

func (r *dishRepository) Create(ctx context.Context, dish domain.Dish) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dishes (`+dishColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
			dish.ID, dish.Name, dish.Description, dish.PriceMinor, dish.ImageURL,
			dish.Weight, dish.PreparationTime, nullableString(dish.CategoryID),
			dish.CreatedAt, dish.UpdatedAt,
		); err != nil {
			if isForeignKeyViolation(err) {
				return domain.ErrCategoryNotFound
			}
			return fmt.Errorf("insert dish: %w", err)
		}
		return insertRecipeTx(ctx, tx, dish)
	})
}

func (r *dishRepository) Get(ctx context.Context, id string) (domain.Dish, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	dish, err := scanDish(r.db.QueryRowContext(ctx, `SELECT `+dishColumns+` FROM dishes WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Dish{}, domain.ErrDishNotFound
	}
	if err != nil {
		return domain.Dish{}, fmt.Errorf("select dish: %w", err)
	}

	recipes, err := r.loadRecipes(ctx, []string{dish.ID})
	if err != nil {
		return domain.Dish{}, err
	}
	dish.Ingredients = recipes[dish.ID]
	return dish, nil
}

// Save перезаписывает поля блюда и заменяет строки рецепта целиком.
func (r *dishRepository) Save(ctx context.Context, dish domain.Dish) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE dishes
			SET name = $2, description = $3, price_minor = $4, image_url = $5,
			    weight = $6, preparation_time = $7, category_id = $8, updated_at = $9
			WHERE id = $1
		`,
			dish.ID, dish.Name, dish.Description, dish.PriceMinor, dish.ImageURL,
			dish.Weight, dish.PreparationTime, nullableString(dish.CategoryID), dish.UpdatedAt,
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return domain.ErrCategoryNotFound
			}
			return fmt.Errorf("update dish: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return domain.ErrDishNotFound
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM dish_ingredients WHERE dish_id = $1`, dish.ID); err != nil {
			return fmt.Errorf("delete dish ingredients: %w", err)
		}
		return insertRecipeTx(ctx, tx, dish)
	})
}

func (r *dishRepository) List(ctx context.Context, filter domain.DishFilter) ([]domain.Dish, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args := buildDishQuery(filter)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dishes: %w", err)
	}
	defer rows.Close()

	dishes := make([]domain.Dish, 0)
	ids := make([]string, 0)
	for rows.Next() {
		dish, err := scanDish(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dish: %w", err)
		}
		dishes = append(dishes, dish)
		ids = append(ids, dish.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dishes: %w", err)
	}
	if len(dishes) == 0 {
		return dishes, nil
	}

	recipes, err := r.loadRecipes(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range dishes {
		dishes[i].Ingredients = recipes[dishes[i].ID]
	}
	return dishes, nil
}

func (r *dishRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM dishes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete dish: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrDishNotFound
	}
	return nil
}

func (r *dishRepository) loadRecipes(ctx context.Context, dishIDs []string) (map[string][]domain.RecipeLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT dish_id, name, quantity, unit
		FROM dish_ingredients
		WHERE dish_id = ANY($1)
		ORDER BY dish_id, position
	`, dishIDs)
	if err != nil {
		return nil, fmt.Errorf("load dish ingredients: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.RecipeLine, len(dishIDs))
	for rows.Next() {
		var (
			dishID string
			line   domain.RecipeLine
		)
		if err := rows.Scan(&dishID, &line.Name, &line.Quantity, &line.Unit); err != nil {
			return nil, fmt.Errorf("scan dish ingredient: %w", err)
		}
		result[dishID] = append(result[dishID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dish ingredients: %w", err)
	}
	return result, nil
}

func insertRecipeTx(ctx context.Context, tx *sql.Tx, dish domain.Dish) error {
	for i, line := range dish.Ingredients {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dish_ingredients (dish_id, position, name, quantity, unit)
			VALUES ($1,$2,$3,$4,$5)
		`, dish.ID, i, line.Name, line.Quantity, line.Unit); err != nil {
			return fmt.Errorf("insert dish ingredient: %w", err)
		}
	}
	return nil
}

// buildDishQuery собирает SELECT по фильтру каталога с позиционными параметрами.
func buildDishQuery(filter domain.DishFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.CategoryID != "" {
		conds = append(conds, "category_id = "+arg(filter.CategoryID))
	}
	if filter.NameLike != "" {
		conds = append(conds, "LOWER(name) LIKE "+arg("%"+escapeLike(strings.ToLower(filter.NameLike))+"%"))
	}
	if filter.MinPriceMinor != nil {
		conds = append(conds, "price_minor >= "+arg(*filter.MinPriceMinor))
	}
	if filter.MaxPriceMinor != nil {
		conds = append(conds, "price_minor <= "+arg(*filter.MaxPriceMinor))
	}

	query := `SELECT ` + dishColumns + ` FROM dishes`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	switch filter.Sort {
	case domain.DishSortNameDesc:
		query += " ORDER BY LOWER(name) DESC, id DESC"
	case domain.DishSortPrice:
		query += " ORDER BY price_minor ASC, id ASC"
	case domain.DishSortPriceDesc:
		query += " ORDER BY price_minor DESC, id ASC"
	default:
		query += " ORDER BY LOWER(name) ASC, id ASC"
	}

	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}
	return query, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanDish(row rowScanner) (domain.Dish, error) {
	var (
		dish       domain.Dish
		categoryID sql.NullString
	)
	if err := row.Scan(
		&dish.ID, &dish.Name, &dish.Description, &dish.PriceMinor, &dish.ImageURL,
		&dish.Weight, &dish.PreparationTime, &categoryID, &dish.CreatedAt, &dish.UpdatedAt,
	); err != nil {
		return domain.Dish{}, err
	}
	dish.CategoryID = categoryID.String
	return dish, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var (
	_ domain.CategoryRepository = (*categoryRepository)(nil)
	_ domain.DishRepository     = (*dishRepository)(nil)
)
