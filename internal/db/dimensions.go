package db

import (
	"fmt"

	"gorm.io/gorm"
)

// Dimension rows are resolved with a conflict-tolerant insert so concurrent
// writers racing on the same natural key converge on a single row. The
// no-op DO UPDATE keeps RETURNING populated on the conflict path, where
// DO NOTHING would return an empty set.

// ResolveResource returns the id for the named resource, creating the row
// on first sight.
func ResolveResource(db *gorm.DB, name string) (uint, error) {
	return upsertID(db, `
		INSERT INTO resources (name) VALUES (?)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, name)
}

// ResolveEndpoint returns the id for path under the given resource,
// creating the row on first sight. The resource id is part of the natural
// key: identical paths under different resources stay distinct.
func ResolveEndpoint(db *gorm.DB, path string, resourceID uint) (uint, error) {
	return upsertID(db, `
		INSERT INTO endpoints (path, resource_id) VALUES (?, ?)
		ON CONFLICT (path, resource_id) DO UPDATE SET path = EXCLUDED.path
		RETURNING id`, path, resourceID)
}

// ResolveCountry returns the id for the named country, creating the row on
// first sight.
func ResolveCountry(db *gorm.DB, name string) (uint, error) {
	return upsertID(db, `
		INSERT INTO countries (name) VALUES (?)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, name)
}

func upsertID(db *gorm.DB, query string, args ...any) (uint, error) {
	var id uint
	if err := db.Raw(query, args...).Scan(&id).Error; err != nil {
		return 0, err
	}
	return id, nil
}

// ResourceIDByName looks up an existing resource without creating it.
// Returns ErrNotFound when the name is unknown.
func ResourceIDByName(db *gorm.DB, name string) (uint, error) {
	// Use Find so "not found" doesn't log as error.
	var r Resource
	res := db.Where("name = ?", name).Limit(1).Find(&r)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("resource %q: %w", name, ErrNotFound)
	}
	return r.ID, nil
}

// CountryIDByName looks up an existing country without creating it.
// Returns ErrNotFound when the name is unknown.
func CountryIDByName(db *gorm.DB, name string) (uint, error) {
	var c Country
	res := db.Where("name = ?", name).Limit(1).Find(&c)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("country %q: %w", name, ErrNotFound)
	}
	return c.ID, nil
}

// ResourceNameByID renders a surrogate id back to its name. An id with no
// row is a data-integrity fault and comes back as ErrNotFound.
func ResourceNameByID(db *gorm.DB, id uint) (string, error) {
	var r Resource
	res := db.Where("id = ?", id).Limit(1).Find(&r)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", fmt.Errorf("resource id %d: %w", id, ErrNotFound)
	}
	return r.Name, nil
}

// CountryNameByID renders a surrogate id back to its name.
func CountryNameByID(db *gorm.DB, id uint) (string, error) {
	var c Country
	res := db.Where("id = ?", id).Limit(1).Find(&c)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", fmt.Errorf("country id %d: %w", id, ErrNotFound)
	}
	return c.Name, nil
}

// ListResources returns all resource names in alphabetical order. The
// slice is non-nil even when empty so it serializes as [].
func ListResources(db *gorm.DB) ([]string, error) {
	names := make([]string, 0)
	if err := db.Model(&Resource{}).Order("name").Pluck("name", &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}

// ListCountries returns all country names in alphabetical order.
func ListCountries(db *gorm.DB) ([]string, error) {
	names := make([]string, 0)
	if err := db.Model(&Country{}).Order("name").Pluck("name", &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}
