// Package quality scores parsed releases against quality profiles and custom formats.
package quality

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidProfile is returned when a profile fails validation
var ErrInvalidProfile = errors.New("invalid quality profile")

// Item is one rung of a quality profile. Its rank is its position in the profile.
type Item struct {
	ID      int    `mapstructure:"id" json:"id"`
	Name    string `mapstructure:"name" json:"name"`
	Allowed bool   `mapstructure:"allowed" json:"allowed"`
}

// Profile is an ordered list of quality items, lowest quality first
type Profile struct {
	Name           string         `mapstructure:"name" json:"name"`
	Items          []Item         `mapstructure:"items" json:"items"`
	Cutoff         int            `mapstructure:"cutoff" json:"cutoff"`
	UpgradeAllowed bool           `mapstructure:"upgrade_allowed" json:"upgradeAllowed"`
	FormatScores   map[string]int `mapstructure:"format_scores" json:"formatScores,omitempty"`
	MinFormatScore int            `mapstructure:"min_format_score" json:"minFormatScore"`
}

// Validate checks that item ids and names are unique and the cutoff exists
func (p Profile) Validate() error {
	if len(p.Items) == 0 {
		return fmt.Errorf("%w %q: no items", ErrInvalidProfile, p.Name)
	}
	ids := make(map[int]bool, len(p.Items))
	names := make(map[string]bool, len(p.Items))
	for _, item := range p.Items {
		if item.Name == "" {
			return fmt.Errorf("%w %q: item %d has no name", ErrInvalidProfile, p.Name, item.ID)
		}
		if ids[item.ID] {
			return fmt.Errorf("%w %q: duplicate item id %d", ErrInvalidProfile, p.Name, item.ID)
		}
		key := strings.ToUpper(item.Name)
		if names[key] {
			return fmt.Errorf("%w %q: duplicate item name %q", ErrInvalidProfile, p.Name, item.Name)
		}
		ids[item.ID] = true
		names[key] = true
	}
	if RankOfID(p.Items, p.Cutoff) < 0 {
		return fmt.Errorf("%w %q: cutoff %d is not one of its items", ErrInvalidProfile, p.Name, p.Cutoff)
	}
	return nil
}

// RankOf returns the rank of the item whose name is exactly the given quality
// name, or -1. Parsed quality names are upper case.
func RankOf(items []Item, name string) int {
	if name == "" {
		return -1
	}
	for i, item := range items {
		if item.Name == name {
			return i
		}
	}
	return -1
}

// RankOfID returns the rank of the item with the given id, or -1
func RankOfID(items []Item, id int) int {
	for i, item := range items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// cutoffRank returns the rank of the cutoff item. A cutoff that is not in the
// profile can never be met.
func cutoffRank(items []Item, cutoff int) int {
	if r := RankOfID(items, cutoff); r >= 0 {
		return r
	}
	return len(items)
}
