package models

// All lists every persisted model in migration order.
func All() []any {
	return []any{
		&Ingredient{},
		&Prep{},
		&PrepIngredient{},
		&MenuItem{},
		&MenuItemIngredient{},
	}
}
