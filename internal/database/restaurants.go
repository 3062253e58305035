package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/afiqaffendi/rbs/internal/models"
)

const restaurantColumns = `id, owner_id, name, address, operating_hours, capacity, created_at, updated_at`

func (db *DB) CreateRestaurant(ctx context.Context, r *models.Restaurant) error {
	inv := r.Inventory
	if inv == nil {
		inv = models.EmptyInventory()
	}
	if err := inv.Validate(); err != nil {
		return err
	}
	if err := models.ValidateMenu(r.Menu); err != nil {
		return err
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		var result sql.Result
		var err error
		if r.ID != 0 {
			result, err = tx.ExecContext(ctx, `INSERT INTO restaurants (`+restaurantColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				r.ID, r.OwnerID, r.Name, r.Address, r.OperatingHours, r.Capacity, now, now)
		} else {
			result, err = tx.ExecContext(ctx, `INSERT INTO restaurants (owner_id, name, address, operating_hours, capacity, created_at, updated_at)
                VALUES (?, ?, ?, ?, ?, ?, ?)`,
				r.OwnerID, r.Name, r.Address, r.OperatingHours, r.Capacity, now, now)
		}
		if err != nil {
			return fmt.Errorf("failed to create restaurant: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		if err := writeInventory(ctx, tx, id, inv); err != nil {
			return err
		}
		if err := writeMenu(ctx, tx, id, r.Menu); err != nil {
			return err
		}
		r.ID = id
		r.Inventory = inv.Clone()
		r.CreatedAt = now
		r.UpdatedAt = now
		return nil
	})
}

// SyncRestaurants upserts seed restaurants by ID. Inventory from the seed replaces the stored one,
// and so does the menu when the seed lists one.
func (db *DB) SyncRestaurants(ctx context.Context, restaurants []models.Restaurant) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		for _, r := range restaurants {
			if r.ID == 0 {
				return fmt.Errorf("%w: seed restaurant %q has no id", models.ErrValidation, r.Name)
			}
			inv := r.Inventory
			if inv == nil {
				inv = models.EmptyInventory()
			}
			if err := inv.Validate(); err != nil {
				return fmt.Errorf("restaurant %d: %w", r.ID, err)
			}
			if err := models.ValidateMenu(r.Menu); err != nil {
				return fmt.Errorf("restaurant %d: %w", r.ID, err)
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO restaurants (`+restaurantColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
                ON CONFLICT(id) DO UPDATE SET
                    owner_id = excluded.owner_id,
                    name = excluded.name,
                    address = excluded.address,
                    operating_hours = excluded.operating_hours,
                    capacity = excluded.capacity,
                    updated_at = excluded.updated_at`,
				r.ID, r.OwnerID, r.Name, r.Address, r.OperatingHours, r.Capacity, now, now)
			if err != nil {
				return fmt.Errorf("failed to sync restaurant %d: %w", r.ID, err)
			}
			if err := writeInventory(ctx, tx, r.ID, inv); err != nil {
				return err
			}
			if len(r.Menu) > 0 {
				if err := writeMenu(ctx, tx, r.ID, r.Menu); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (db *DB) GetRestaurant(ctx context.Context, id int64) (*models.Restaurant, error) {
	return getRestaurant(ctx, db, id)
}

func getRestaurant(ctx context.Context, q querier, id int64) (*models.Restaurant, error) {
	var r models.Restaurant
	err := q.QueryRowContext(ctx, `SELECT `+restaurantColumns+` FROM restaurants WHERE id = ?`, id).Scan(
		&r.ID, &r.OwnerID, &r.Name, &r.Address, &r.OperatingHours, &r.Capacity, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "restaurant", id)
	}
	inv, err := readInventory(ctx, q, id)
	if err != nil {
		return nil, err
	}
	r.Inventory = inv
	if r.Menu, err = readMenu(ctx, q, id); err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *DB) ListRestaurants(ctx context.Context) ([]models.Restaurant, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+restaurantColumns+` FROM restaurants ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list restaurants: %w", err)
	}
	defer rows.Close()

	var restaurants []models.Restaurant
	for rows.Next() {
		var r models.Restaurant
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Name, &r.Address, &r.OperatingHours, &r.Capacity, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan restaurant: %w", err)
		}
		restaurants = append(restaurants, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range restaurants {
		inv, err := readInventory(ctx, db, restaurants[i].ID)
		if err != nil {
			return nil, err
		}
		restaurants[i].Inventory = inv
		if restaurants[i].Menu, err = readMenu(ctx, db, restaurants[i].ID); err != nil {
			return nil, err
		}
	}
	return restaurants, nil
}

// UpdateInventory replaces the owned table counts of a restaurant.
// Lowering a count below current occupancy is allowed; existing bookings are kept and
// new allocations for that class are refused until occupancy drops.
func (db *DB) UpdateInventory(ctx context.Context, restaurantID int64, inv models.TableInventory) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE restaurants SET updated_at = ? WHERE id = ?`, time.Now(), restaurantID)
		if err != nil {
			return fmt.Errorf("failed to update restaurant: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return fmt.Errorf("%w: restaurant %d", models.ErrNotFound, restaurantID)
		}
		return writeInventory(ctx, tx, restaurantID, inv)
	})
}

func (db *DB) UpdateOperatingHours(ctx context.Context, restaurantID int64, hours string) error {
	result, err := db.ExecContext(ctx, `UPDATE restaurants SET operating_hours = ?, updated_at = ? WHERE id = ?`,
		hours, time.Now(), restaurantID)
	if err != nil {
		return fmt.Errorf("failed to update operating hours: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: restaurant %d", models.ErrNotFound, restaurantID)
	}
	return nil
}

// UpdateMenu replaces the catalog of a restaurant. Bookings keep the prices they were made at.
func (db *DB) UpdateMenu(ctx context.Context, restaurantID int64, menu []models.MenuItem) error {
	if err := models.ValidateMenu(menu); err != nil {
		return err
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE restaurants SET updated_at = ? WHERE id = ?`, time.Now(), restaurantID)
		if err != nil {
			return fmt.Errorf("failed to update restaurant: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return fmt.Errorf("%w: restaurant %d", models.ErrNotFound, restaurantID)
		}
		return writeMenu(ctx, tx, restaurantID, menu)
	})
}

func writeMenu(ctx context.Context, q querier, restaurantID int64, menu []models.MenuItem) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM restaurant_menu WHERE restaurant_id = ?`, restaurantID); err != nil {
		return fmt.Errorf("failed to clear menu: %w", err)
	}
	for i, it := range menu {
		_, err := q.ExecContext(ctx, `INSERT INTO restaurant_menu (restaurant_id, position, name, unit_price_cents) VALUES (?, ?, ?, ?)`,
			restaurantID, i, strings.TrimSpace(it.Name), it.UnitPriceCents)
		if err != nil {
			return fmt.Errorf("failed to write menu item %q: %w", it.Name, err)
		}
	}
	return nil
}

func readMenu(ctx context.Context, q querier, restaurantID int64) ([]models.MenuItem, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, unit_price_cents FROM restaurant_menu WHERE restaurant_id = ? ORDER BY position`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to read menu: %w", err)
	}
	defer rows.Close()

	var menu []models.MenuItem
	for rows.Next() {
		var it models.MenuItem
		if err := rows.Scan(&it.Name, &it.UnitPriceCents); err != nil {
			return nil, fmt.Errorf("failed to scan menu item: %w", err)
		}
		menu = append(menu, it)
	}
	return menu, rows.Err()
}

func writeInventory(ctx context.Context, q querier, restaurantID int64, inv models.TableInventory) error {
	for _, c := range models.AllSizeClasses {
		_, err := q.ExecContext(ctx, `INSERT INTO table_inventory (restaurant_id, size_class, owned_count) VALUES (?, ?, ?)
            ON CONFLICT(restaurant_id, size_class) DO UPDATE SET owned_count = excluded.owned_count`,
			restaurantID, int(c), inv.OwnedCount(c))
		if err != nil {
			return fmt.Errorf("failed to write inventory %s: %w", c, err)
		}
	}
	return nil
}

func readInventory(ctx context.Context, q querier, restaurantID int64) (models.TableInventory, error) {
	rows, err := q.QueryContext(ctx, `SELECT size_class, owned_count FROM table_inventory WHERE restaurant_id = ?`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	defer rows.Close()

	inv := models.EmptyInventory()
	for rows.Next() {
		var class, count int
		if err := rows.Scan(&class, &count); err != nil {
			return nil, fmt.Errorf("failed to scan inventory: %w", err)
		}
		if err := inv.Set(models.TableSizeClass(class), count); err != nil {
			return nil, fmt.Errorf("%w: stored inventory for restaurant %d: %v", models.ErrConfiguration, restaurantID, err)
		}
	}
	return inv, rows.Err()
}

// ownedCount reads a single class count inside a transaction.
func ownedCount(ctx context.Context, q querier, restaurantID int64, class models.TableSizeClass) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT owned_count FROM table_inventory WHERE restaurant_id = ? AND size_class = ?`,
		restaurantID, int(class)).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read owned count: %w", err)
	}
	return n, nil
}
