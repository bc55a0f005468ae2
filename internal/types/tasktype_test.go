package types

import "testing"

func TestParseTaskType(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"product_matching", true},
		{"list_building", true},
		{"meal_planning", true},
		{"title_generation", true},
		{"price_analysis", true},
		{"receipt_scan", true},
		{"nonexistent_task", false},
		{"LIST_BUILDING", false},
		{"", false},
	}

	for _, tt := range tests {
		got, ok := ParseTaskType(tt.input)
		if ok != tt.valid {
			t.Errorf("ParseTaskType(%q) valid = %v, want %v", tt.input, ok, tt.valid)
		}
		if ok && string(got) != tt.input {
			t.Errorf("ParseTaskType(%q) = %q", tt.input, got)
		}
	}
}

func TestAllTaskTypes_AreKnown(t *testing.T) {
	seen := make(map[TaskType]bool)
	for _, task := range AllTaskTypes() {
		if !task.Known() {
			t.Errorf("%s should be known", task)
		}
		if seen[task] {
			t.Errorf("%s listed twice", task)
		}
		seen[task] = true
	}
	if len(seen) != 6 {
		t.Errorf("expected 6 task types, got %d", len(seen))
	}
}

func TestTaskType_Volatile(t *testing.T) {
	if !TaskPriceAnalysis.Volatile() {
		t.Error("price_analysis should be volatile")
	}
	if TaskTitleGeneration.Volatile() {
		t.Error("title_generation should not be volatile")
	}
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RoleSystem, RoleUser, RoleAssistant} {
		if !r.Valid() {
			t.Errorf("%s should be valid", r)
		}
	}
	if Role("tool").Valid() {
		t.Error("tool role should not be valid")
	}
}

func TestRouteConfig_HasFallback(t *testing.T) {
	tests := []struct {
		name  string
		route RouteConfig
		want  bool
	}{
		{"distinct", RouteConfig{Primary: ProviderRoute{Provider: "deepseek"}, Fallback: ProviderRoute{Provider: "openai"}}, true},
		{"none", RouteConfig{Primary: ProviderRoute{Provider: "deepseek"}}, false},
		{"same provider", RouteConfig{Primary: ProviderRoute{Provider: "openai", Model: "a"}, Fallback: ProviderRoute{Provider: "openai", Model: "b"}}, false},
	}
	for _, tt := range tests {
		if got := tt.route.HasFallback(); got != tt.want {
			t.Errorf("%s: HasFallback() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
