package flakeanalyticsquery

import (
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
)

// BuildCrossTab produces a dense contingency matrix over the values of both
// dimensions actually occurring in the given events, never the global
// universe. Cell rates are row-normalized: absolute counts across rows of
// very different sizes are not independently comparable on a heatmap.
// Pairs without events are explicit zero cells.
func BuildCrossTab(events []flakeanalyticsapi.FailureEvent, rowDimension, columnDimension string) (*flakeanalyticsapi.CrossTab, error) {
	rowAccessor, ok := accessorForDimension(rowDimension)
	if !ok {
		return nil, flakeanalyticsapi.NewValidationError("unknown cross-tab dimension %q", rowDimension)
	}
	columnAccessor, ok := accessorForDimension(columnDimension)
	if !ok {
		return nil, flakeanalyticsapi.NewValidationError("unknown cross-tab dimension %q", columnDimension)
	}

	rowValues := sets.String{}
	columnValues := sets.String{}
	counts := map[string]map[string]int{}
	rowTotals := map[string]int{}
	for _, event := range events {
		rowValue := rowAccessor(event)
		columnValue := columnAccessor(event)
		rowValues.Insert(rowValue)
		columnValues.Insert(columnValue)
		if counts[rowValue] == nil {
			counts[rowValue] = map[string]int{}
		}
		counts[rowValue][columnValue]++
		rowTotals[rowValue]++
	}

	crossTab := &flakeanalyticsapi.CrossTab{
		RowDimension:    rowDimension,
		ColumnDimension: columnDimension,
		RowValues:       rowValues.List(),
		ColumnValues:    columnValues.List(),
		Cells:           map[string]map[string]flakeanalyticsapi.CrossTabCell{},
	}
	for _, rowValue := range crossTab.RowValues {
		crossTab.Cells[rowValue] = map[string]flakeanalyticsapi.CrossTabCell{}
		for _, columnValue := range crossTab.ColumnValues {
			count := counts[rowValue][columnValue]
			cell := flakeanalyticsapi.CrossTabCell{Count: count}
			if total := rowTotals[rowValue]; total > 0 {
				cell.Rate = float64(count) / float64(total)
			}
			crossTab.Cells[rowValue][columnValue] = cell
		}
	}
	return crossTab, nil
}
