package analysis

import "github.com/vbonduro/caloriesnap/internal/llm"

const identifyPrompt = `You are an expert food identifier. Given a photo of a meal, identify the individual food items that are present in the photo. Return a list of the food items.`

// estimatePrompt takes the comma-separated item list.
const estimatePrompt = `You are a nutrition expert. Estimate the calorie count for each food item provided in the list.

Food Items: %s

Provide a detailed breakdown of each food item and its estimated calorie count.`

var foodItemsSchema = &llm.Schema{
	Name: "food_items",
	Fields: []llm.Field{{
		Name:        "foodItems",
		Kind:        llm.KindStringList,
		Description: "The list of identified food items.",
	}},
}

var calorieEstimateSchema = &llm.Schema{
	Name: "calorie_estimate",
	Fields: []llm.Field{{
		Name:        "estimatedCalories",
		Kind:        llm.KindString,
		Description: "Each food item with its estimated calorie count.",
	}},
}
