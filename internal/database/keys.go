package database

import "fmt"

// Redis key layout
const scenarioIndexKey = "scenarios"

func creditsKey(scenarioID string) string {
	return fmt.Sprintf("scenario:%s:credits", scenarioID)
}

func graphKey(scenarioID string) string {
	return fmt.Sprintf("scenario:%s:graph", scenarioID)
}

func generatingKey(scenarioID string) string {
	return fmt.Sprintf("scenario:%s:generating", scenarioID)
}

func slotOwnersKey(scenarioID string) string {
	return fmt.Sprintf("scenario:%s:generating:owners", scenarioID)
}
