package models

// CatalogItem is a cosmetic unlock that can be bought with coins
type CatalogItem struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
	Price int    `json:"price" yaml:"price"`
}

// Avatar is one entry of the fixed avatar set
type Avatar struct {
	ID       string `json:"id" yaml:"id"`
	Label    string `json:"label" yaml:"label"`
	ImageURL string `json:"image_url,omitempty" yaml:"image_url"`
}

// Rules holds the reward constants of the questionnaire
type Rules struct {
	StartingCoins int `json:"starting_coins" yaml:"starting_coins"`
	CoinReward    int `json:"coin_reward" yaml:"coin_reward"`
	XPReward      int `json:"xp_reward" yaml:"xp_reward"`
	LevelXPFactor int `json:"level_xp_factor" yaml:"level_xp_factor"`
	LevelUpBonus  int `json:"level_up_bonus" yaml:"level_up_bonus"`
}

// DefaultRules mirrors the values the questionnaire was first run with
func DefaultRules() Rules {
	return Rules{
		StartingCoins: 50,
		CoinReward:    8,
		XPReward:      12,
		LevelXPFactor: 120,
		LevelUpBonus:  40,
	}
}
