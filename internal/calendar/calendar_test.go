package calendar

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wombat/internal/model"
)

func TestThresholds(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, _, ok := Thresholds(nil)
		assert.False(t, ok)
		assert.Empty(t, Bucketize(nil))
	})

	t.Run("single distinct price is cheap", func(t *testing.T) {
		got := Bucketize(map[string]int{"2025-06-01": 50000, "2025-06-02": 50000})
		assert.Equal(t, TierCheap, got["2025-06-01"])
		assert.Equal(t, TierCheap, got["2025-06-02"])
	})

	t.Run("two prices", func(t *testing.T) {
		got := Bucketize(map[string]int{"a": 30000, "b": 60000})
		assert.Equal(t, TierCheap, got["a"])
		assert.Equal(t, TierExpensive, got["b"])
	})

	t.Run("three prices reach the top tier", func(t *testing.T) {
		got := Bucketize(map[string]int{"a": 30000, "b": 60000, "c": 90000})
		assert.Equal(t, TierCheap, got["a"])
		assert.Equal(t, TierModerate, got["b"])
		assert.Equal(t, TierExpensive, got["c"])
	})

	t.Run("duplicates do not shift thresholds", func(t *testing.T) {
		low, high, ok := Thresholds([]int{30000, 30000, 30000, 60000, 90000})
		require.True(t, ok)
		assert.Equal(t, 30000, low)
		assert.Equal(t, 60000, high)
	})
}

func TestBucketize_MaxAlwaysExpensive(t *testing.T) {
	for n := 3; n <= 40; n++ {
		prices := make(map[string]int, n)
		maxDate := ""
		for i := 0; i < n; i++ {
			d := fmt.Sprintf("d%02d", i)
			prices[d] = 10000 + i*2500
			maxDate = d
		}
		got := Bucketize(prices)
		assert.Equal(t, TierExpensive, got[maxDate], "n=%d", n)

		low, high, _ := Thresholds(mapValues(prices))
		assert.LessOrEqual(t, low, high)
	}
}

func mapValues(m map[string]int) []int {
	out := make([]int, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func result(date string, fares ...model.FlightFare) model.SearchResult {
	r := model.SearchResult{Origin: "SFO", Destination: "NRT", Date: date}
	for i, f := range fares {
		r.Flights = append(r.Flights, model.Flight{FlightNo: fmt.Sprintf("XX %d", i)}.WithFares([]model.FlightFare{f}))
	}
	return r
}

func fare(miles int, cabin model.Cabin, program model.Program) model.FlightFare {
	return model.FlightFare{Miles: miles, Cabin: cabin, Program: program}
}

func TestBestByDate(t *testing.T) {
	results := []model.SearchResult{
		result("2025-06-01", fare(70000, model.CabinBusiness, model.ProgramAlaska), fare(60000, model.CabinBusiness, model.ProgramAeroplan)),
		result("2025-06-02", fare(35000, model.CabinEconomy, model.ProgramAlaska)),
		result("2025-06-03"),
	}

	all := BestByDate(results, "")
	require.Len(t, all, 2)
	assert.Equal(t, 60000, all["2025-06-01"].Miles)
	assert.Equal(t, model.ProgramAeroplan, all["2025-06-01"].Program)
	assert.Equal(t, 35000, all["2025-06-02"].Miles)

	biz := BestByDate(results, model.CabinBusiness)
	assert.Len(t, biz, 1)
	_, ok := biz["2025-06-02"]
	assert.False(t, ok)
}

func TestBuild(t *testing.T) {
	results := []model.SearchResult{
		result("2025-03-01", fare(30000, model.CabinEconomy, model.ProgramAlaska)),
		result("2025-03-02", fare(60000, model.CabinEconomy, model.ProgramAlaska)),
		result("2025-03-03", fare(90000, model.CabinEconomy, model.ProgramAeroplan)),
		result("2025-03-04"),
		result("2025-04-01", fare(45000, model.CabinEconomy, model.ProgramAlaska)),
	}

	cal, err := Build("SFO", "NRT", results, "")
	require.NoError(t, err)

	assert.Equal(t, 5, cal.Searched)
	assert.Equal(t, 4, cal.Available())
	require.Len(t, cal.Months, 2)
	assert.Equal(t, "March 2025", cal.Months[0].Title())
	assert.Equal(t, "April 2025", cal.Months[1].Title())

	// 2025-03-01 is a Saturday.
	firstWeek := cal.Months[0].Weeks[0]
	assert.Equal(t, 0, firstWeek[0].Day)
	assert.Equal(t, 1, firstWeek[5].Day)
	assert.Equal(t, TierCheap, firstWeek[5].Tier)
	assert.Equal(t, 2, firstWeek[6].Day)

	secondWeek := cal.Months[0].Weeks[1]
	assert.Equal(t, 3, secondWeek[0].Day)
	assert.Equal(t, TierExpensive, secondWeek[0].Tier)
	assert.True(t, secondWeek[1].Searched)
	assert.Nil(t, secondWeek[1].Fare)
	assert.False(t, secondWeek[2].Searched)

	best, ok := cal.Best()
	require.True(t, ok)
	assert.Equal(t, "2025-03-01", best.Date)
	assert.Equal(t, 30000, best.Miles)

	_, err = Build("SFO", "NRT", []model.SearchResult{{Date: "03/01/2025"}}, "")
	assert.Error(t, err)
}

func TestMonthDates(t *testing.T) {
	dates := MonthDates(time.Date(2025, time.December, 15, 0, 0, 0, 0, time.UTC), 2)
	require.Len(t, dates, 31+31)
	assert.Equal(t, "2025-12-01", dates[0])
	assert.Equal(t, "2026-01-31", dates[len(dates)-1])

	feb := MonthDates(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), 1)
	assert.Len(t, feb, 29)
}
