package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/af-corp/grocer-orchestrator/internal/types"
)

const (
	productMatchingPrompt = `You match a shopper's grocery query to store catalog products.
Reply with JSON: {"matches":[{"index":<candidate number>,"confidence":<0..1>,"reason":"..."}]}.
Only include candidates that are the same product or an acceptable substitute, best first.`

	listBuildingPrompt = `You turn free-form shopping requests into a grocery list.
Reply with JSON: {"items":[{"name":"...","quantity":<number>,"unit":"...","category":"..."}]}.
Keep brand, fat content and size qualifiers (for example "2% milk") in the item name.`

	mealPlanningPrompt = `You are a practical meal planner for a household grocery app.
Reply with JSON: {"days":[{"day":<n>,"meals":[{"name":"...","ingredients":["..."]}]}],"shopping_list":["..."]}.
Prefer ingredients already in the pantry and reuse ingredients across meals.`

	titleGenerationPrompt = `You write short titles for grocery lists.
Reply with the title only: at most six words, no quotes, no trailing punctuation.`

	priceAnalysisPrompt = `You analyse grocery price observations across stores.
Reply with JSON: {"best_store":"...","best_price":<number>,"trend":"rising|falling|stable","summary":"..."}.
Base the answer only on the observations given.`

	receiptScanPrompt = `You extract structured data from the text of a grocery receipt.
Reply with JSON: {"store":"...","date":"YYYY-MM-DD","items":[{"name":"...","quantity":<number>,"price":<number>}],"total":<number>}.
Use null for fields that are not present in the text.`
)

// MatchProducts asks which catalog candidates match a shopper's query.
func (o *Orchestrator) MatchProducts(ctx context.Context, userID, query string, candidates []string) (*types.Response, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\nCandidates:\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	return o.runTask(ctx, types.TaskProductMatching, userID, productMatchingPrompt, b.String(), FormatJSON)
}

// BuildList turns a free-form request such as "2% milk and eggs for the week"
// into a structured grocery list.
func (o *Orchestrator) BuildList(ctx context.Context, userID, request string) (*types.Response, error) {
	return o.runTask(ctx, types.TaskListBuilding, userID, listBuildingPrompt, request, FormatJSON)
}

// MealPlanRequest describes the plan PlanMeals should produce.
type MealPlanRequest struct {
	Days         int
	People       int
	Diet         string
	Pantry       []string
	BudgetPerDay float64
}

// PlanMeals produces a meal plan and the shopping list it needs.
func (o *Orchestrator) PlanMeals(ctx context.Context, userID string, req MealPlanRequest) (*types.Response, error) {
	if req.Days <= 0 {
		return nil, &ValidationError{Field: "days", Reason: "must be a positive integer"}
	}
	people := req.People
	if people <= 0 {
		people = 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Plan %d days of meals for %d people.\n", req.Days, people)
	if req.Diet != "" {
		fmt.Fprintf(&b, "Diet: %s\n", req.Diet)
	}
	if len(req.Pantry) > 0 {
		fmt.Fprintf(&b, "Pantry: %s\n", strings.Join(req.Pantry, ", "))
	}
	if req.BudgetPerDay > 0 {
		fmt.Fprintf(&b, "Budget per day: $%.2f\n", req.BudgetPerDay)
	}
	return o.runTask(ctx, types.TaskMealPlanning, userID, mealPlanningPrompt, b.String(), FormatJSON)
}

// GenerateTitle names a grocery list from its items.
func (o *Orchestrator) GenerateTitle(ctx context.Context, userID string, items []string) (*types.Response, error) {
	if len(items) == 0 {
		return nil, &ValidationError{Field: "items", Reason: "must not be empty"}
	}
	return o.runTask(ctx, types.TaskTitleGeneration, userID, titleGenerationPrompt, "Items: "+strings.Join(items, ", "), FormatText)
}

// PriceObservation is one observed shelf price.
type PriceObservation struct {
	Store    string
	Price    float64
	Observed time.Time
}

// AnalyzePrices compares observed prices of one product across stores.
func (o *Orchestrator) AnalyzePrices(ctx context.Context, userID, product string, observations []PriceObservation) (*types.Response, error) {
	if len(observations) == 0 {
		return nil, &ValidationError{Field: "observations", Reason: "must not be empty"}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s\nObservations:\n", product)
	for _, obs := range observations {
		fmt.Fprintf(&b, "- %s: $%.2f on %s\n", obs.Store, obs.Price, obs.Observed.UTC().Format("2006-01-02"))
	}
	return o.runTask(ctx, types.TaskPriceAnalysis, userID, priceAnalysisPrompt, b.String(), FormatJSON)
}

// ScanReceipt extracts line items from receipt text that has already been
// through OCR.
func (o *Orchestrator) ScanReceipt(ctx context.Context, userID, receiptText string) (*types.Response, error) {
	if strings.TrimSpace(receiptText) == "" {
		return nil, &ValidationError{Field: "receipt_text", Reason: "must not be empty"}
	}
	return o.runTask(ctx, types.TaskReceiptScan, userID, receiptScanPrompt, receiptText, FormatJSON)
}

func (o *Orchestrator) runTask(ctx context.Context, task types.TaskType, userID, system, user, format string) (*types.Response, error) {
	return o.Chat(ctx, []types.Message{
		types.SystemMessage(system),
		types.UserMessage(user),
	}, Options{
		TaskType:       task,
		UserID:         userID,
		ResponseFormat: format,
	})
}
