// Package assignment decides which area a user is currently assigned to from
// their progress-bucket records.
package assignment

import (
	"fmt"
	"sort"

	"github.com/dharsanguruparan/CleanOps/internal/apperr"
	"github.com/dharsanguruparan/CleanOps/internal/model"
)

// Assignment is the resolved area together with the record that selected it.
type Assignment struct {
	Area   model.Area
	Record model.ProgressRecord
}

// Latest returns the most recent record for userID, ordering by date and then
// by id, both descending. Records of other users are ignored so an unfiltered
// backend response is safe to pass.
func Latest(userID model.ID, records []model.ProgressRecord) (model.ProgressRecord, error) {
	mine := make([]model.ProgressRecord, 0, len(records))
	for _, r := range records {
		if r.UserID == userID {
			mine = append(mine, r)
		}
	}
	if len(mine) == 0 {
		return model.ProgressRecord{}, fmt.Errorf("%w: no assignment record for user %d", apperr.ErrNotFound, userID)
	}
	sort.SliceStable(mine, func(i, j int) bool {
		if mine[i].Date != mine[j].Date {
			return mine[i].Date > mine[j].Date
		}
		return mine[i].ID > mine[j].ID
	})
	return mine[0], nil
}

// Resolve picks the latest record for userID and looks its bucket up in areas.
func Resolve(userID model.ID, records []model.ProgressRecord, areas []model.Area) (Assignment, error) {
	latest, err := Latest(userID, records)
	if err != nil {
		return Assignment{}, err
	}
	for _, a := range areas {
		if a.ID == latest.DefinitionID {
			return Assignment{Area: a, Record: latest}, nil
		}
	}
	return Assignment{}, fmt.Errorf("%w: assigned area %d is not in the catalog", apperr.ErrNotFound, latest.DefinitionID)
}
