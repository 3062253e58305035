package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/afiqaffendi/rbs/internal/models"
)

type restaurantSeed struct {
	models.Restaurant `yaml:",inline"`
	Tables            map[string]int `yaml:"tables"`
}

// LoadRestaurants reads the seed file of restaurants, their table inventory and menus.
func LoadRestaurants(path string) ([]models.Restaurant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var seeds struct {
		Restaurants []restaurantSeed `yaml:"restaurants"`
	}
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	out := make([]models.Restaurant, 0, len(seeds.Restaurants))
	for _, s := range seeds.Restaurants {
		inv, err := models.NewTableInventory(s.Tables)
		if err != nil {
			return nil, fmt.Errorf("restaurant %d: %w", s.ID, err)
		}
		if err := models.ValidateMenu(s.Menu); err != nil {
			return nil, fmt.Errorf("restaurant %d: %w", s.ID, err)
		}
		r := s.Restaurant
		r.Inventory = inv
		out = append(out, r)
	}
	return out, nil
}
