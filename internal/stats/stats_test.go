package stats

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"factoryflow/internal/table"
)

func TestInferHeaders_ExactBeforeSubstring(t *testing.T) {
	t.Parallel()

	roles := InferHeaders([]string{"start_time", "Duration_Mins", "Machine_ID", "team_lead", "Assigned_Team", "Order_Code", "QTY"})

	want := RoleMap{
		RoleDuration: {Index: 1, Name: "Duration_Mins"},
		RoleMachine:  {Index: 2, Name: "Machine_ID"},
		RoleTeam:     {Index: 4, Name: "Assigned_Team"},
		RoleOrderID:  {Index: 5, Name: "Order_Code"},
		RoleQuantity: {Index: 6, Name: "QTY"},
	}
	if diff := cmp.Diff(want, roles); diff != "" {
		t.Fatalf("roles diff:\n%s", diff)
	}
	if roles.Has(RoleShift) {
		t.Fatalf("shift should be absent")
	}
}

func TestInferHeaders_SubstringFallbackFirstColumnWins(t *testing.T) {
	t.Parallel()

	roles := InferHeaders([]string{"start_time", "end_time", "shift_name", "night_shift"})
	if got := roles[RoleDuration]; got.Index != 0 {
		t.Fatalf("duration want start_time got %+v", got)
	}
	if got := roles[RoleShift]; got.Index != 2 {
		t.Fatalf("shift want shift_name got %+v", got)
	}
}

func TestCompute_JSONScenario(t *testing.T) {
	t.Parallel()

	tbl := table.Decode("code,quantity,machine,shift\nA1,5,M1,Night Shift")
	got := Compute(tbl)
	if got == nil {
		t.Fatalf("expected stats")
	}

	want := &Stats{
		TotalOrders:        1,
		TotalUnits:         5,
		MachineUtilization: []MachineCount{{Name: "M1", Count: 1}},
		ShiftDistribution:  []ShiftBucket{{Name: "Night", Value: 1}},
		TotalRows:          1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("stats diff:\n%s", diff)
	}
}

func TestCompute_PlaceholderTable(t *testing.T) {
	t.Parallel()

	tbl := table.Decode("code,item_number,description,colour,material,quantity\nNO_DATA,0,No data returned,,,")
	got := Compute(tbl)
	if got == nil {
		t.Fatalf("expected non-nil stats for placeholder")
	}
	if got.TotalOrders != 1 || got.TotalUnits != 0 || got.TotalRows != 1 {
		t.Fatalf("unexpected placeholder stats: %+v", got)
	}
}

func TestCompute_FullSchedule(t *testing.T) {
	t.Parallel()

	text := "code,quantity,machine,duration_mins,shift,assigned_team\n" +
		"A1,5,Saw,30,Night Shift,Blue\n" +
		"A1,3,Saw,15.5,night,\n" +
		"B2,n/a,Lathe,abc,Morning,Red\n" +
		"C3,10 pcs,Saw,12min,Swing,Green\n" +
		"D4,2,,2.5,Late Evening,"
	got := Compute(table.Decode(text))

	want := &Stats{
		TotalOrders:      4,
		TotalUnits:       20,
		AvgBatchDuration: (30 + 15.5 + 0 + 12 + 2.5) / 5,
		OrdersWithTeams:  3,
		MachineUtilization: []MachineCount{
			{Name: "Saw", Count: 3},
			{Name: "Lathe", Count: 1},
		},
		ShiftDistribution: []ShiftBucket{
			{Name: "Night", Value: 2},
			{Name: "Morning", Value: 1},
			{Name: "Evening", Value: 1},
		},
		TotalRows: 5,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("stats diff:\n%s", diff)
	}
}

func TestAggregate_NullSafety(t *testing.T) {
	t.Parallel()

	if got := Compute(table.Decode("")); got != nil {
		t.Fatalf("empty table should yield nil, got %+v", got)
	}
	if got := Compute(table.Decode("code,quantity")); got != nil {
		t.Fatalf("header-only table should yield nil, got %+v", got)
	}

	got := Compute(table.Decode("alpha,beta\nx,y\nz,w"))
	if got == nil {
		t.Fatalf("rows without known columns should still yield stats")
	}
	want := &Stats{
		TotalOrders:        2,
		MachineUtilization: []MachineCount{},
		ShiftDistribution:  []ShiftBucket{},
		TotalRows:          2,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("stats diff:\n%s", diff)
	}
}

func TestAggregate_SkipsOverlongRows(t *testing.T) {
	t.Parallel()

	tbl := table.Table{
		Headers: []string{"code", "qty"},
		Rows: [][]string{
			{"A1", "2"},
			{"A2", "3", "extra"},
			{"A3"},
		},
	}
	got := NewAggregator(nil).Compute(tbl)
	if got.TotalRows != 2 || got.TotalUnits != 2 || got.TotalOrders != 2 {
		t.Fatalf("unexpected stats: %+v", got)
	}
}

func TestRegroupShifts_Idempotent(t *testing.T) {
	t.Parallel()

	raw := []ShiftBucket{
		{Name: "Evening B", Value: 2},
		{Name: "NIGHT", Value: 1},
		{Name: "Night Shift", Value: 4},
		{Name: "Weekend", Value: 9},
		{Name: "afternoon", Value: 3},
	}
	once := RegroupShifts(raw)
	twice := RegroupShifts(once)

	want := []ShiftBucket{
		{Name: "Night", Value: 5},
		{Name: "Afternoon", Value: 3},
		{Name: "Evening", Value: 2},
	}
	if diff := cmp.Diff(want, once); diff != "" {
		t.Fatalf("once diff:\n%s", diff)
	}
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("regroup not idempotent:\n%s", diff)
	}
}

func TestParsePrefix(t *testing.T) {
	t.Parallel()

	ints := map[string]int{"5": 5, " 12 pcs": 12, "5.7": 5, "-3": -3, "n/a": 0, "": 0, "1e3": 1}
	for in, want := range ints {
		if got := ParseIntPrefix(in); got != want {
			t.Fatalf("ParseIntPrefix(%q) = %d want %d", in, got, want)
		}
	}

	floats := map[string]float64{"45.5min": 45.5, ".5": 0.5, "1e3": 1000, "abc": 0, "7.": 7}
	for in, want := range floats {
		if got := ParseFloatPrefix(in); got != want {
			t.Fatalf("ParseFloatPrefix(%q) = %v want %v", in, got, want)
		}
	}
}

func TestCompute_BlankLinesDoNotCount(t *testing.T) {
	t.Parallel()

	got := Compute(table.Decode("code,quantity,duration\nA1,5,10\n   \nA2,3,20"))
	if got == nil {
		t.Fatal("expected stats")
	}
	if got.TotalRows != 2 || got.TotalOrders != 2 || got.TotalUnits != 8 || got.AvgBatchDuration != 15 {
		t.Fatalf("unexpected stats: %+v", got)
	}

	// 无订单号列时订单数按行数计
	got = Compute(table.Decode("quantity,duration\n5,10\n \t \n3,20\n"))
	if got == nil || got.TotalOrders != 2 || got.TotalRows != 2 {
		t.Fatalf("unexpected stats without order id: %+v", got)
	}
}
