package segment

import "testing"

func TestBuildPlan_NoScenesFails(t *testing.T) {
	_, err := BuildPlan(nil, 100, 5, 30)
	if err == nil {
		t.Fatal("expected an error when no candidate scenes are detected")
	}
}

func TestBuildPlan_FiltersCloseScenes(t *testing.T) {
	// 10.0 and 11.5 are within the 5s minimum gap; only one should survive.
	plan, err := BuildPlan([]float64{10.0, 11.5, 40.0}, 100, 5, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, b := range plan.Boundaries {
		if b == 11.5 {
			t.Errorf("boundary 11.5 should have been filtered (min gap 5s): %v", plan.Boundaries)
		}
	}
}

func TestBuildPlan_SingleStrideInsertion(t *testing.T) {
	// One scene at 10s in a 50s source with a 30s cap: the 10..50 gap is
	// 40s, so exactly one synthetic boundary lands at 10+30=40.
	plan, err := BuildPlan([]float64{10.0}, 50, 5, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []float64{10, 40}
	if len(plan.Boundaries) != len(want) {
		t.Fatalf("boundaries = %v, want %v", plan.Boundaries, want)
	}
	for i := range want {
		if plan.Boundaries[i] != want[i] {
			t.Fatalf("boundaries = %v, want %v", plan.Boundaries, want)
		}
	}
}

func TestBuildPlan_BoundariesStrictlyInside(t *testing.T) {
	plan, err := BuildPlan([]float64{0, 90.0, 100}, 100, 5, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i, b := range plan.Boundaries {
		if b <= 0 || b >= 100 {
			t.Errorf("boundary %v not strictly inside (0, 100): %v", b, plan.Boundaries)
		}
		if i > 0 && b <= plan.Boundaries[i-1] {
			t.Errorf("boundaries not strictly increasing: %v", plan.Boundaries)
		}
	}
}

func TestBuildPlan_GapCoverage(t *testing.T) {
	// Every gap, including the implicit leading and trailing ones, must
	// come out at or under the 30s cap.
	plan, err := BuildPlan([]float64{90.0}, 200, 5, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prev := 0.0
	for _, b := range append(append([]float64{}, plan.Boundaries...), 200) {
		if b-prev > 30.0001 {
			t.Errorf("gap %v..%v exceeds the 30s cap (boundaries %v)", prev, b, plan.Boundaries)
		}
		prev = b
	}
}
