package controller

import "github.com/seenimoa/macrocal/pkg/models"

// Option is one selectable value of a filter dimension.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// FilterOptions are the choices offered by the filter panel.
type FilterOptions struct {
	Importance []Option `json:"importance"`
	Currency   []Option `json:"currency"`
}

// DefaultFilterOptions returns the standard filter panel choices.
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{
		Importance: []Option{
			{"全部", models.FilterAll},
			{"🔥 高重要性", models.FilterHigh},
			{"⚠️ 中重要性", models.FilterMedium},
			{"📊 低重要性", models.FilterLow},
		},
		Currency: []Option{
			{"全部货币", models.FilterAll},
			{"🇺🇸 美元", "USD"},
			{"🇪🇺 欧元", "EUR"},
			{"🇨🇳 人民币", "CNY"},
			{"🇯🇵 日元", "JPY"},
			{"🇬🇧 英镑", "GBP"},
		},
	}
}
