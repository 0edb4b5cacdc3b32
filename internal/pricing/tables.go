package pricing

// countryCurrencies は国コード（ISO 3166-1 alpha-2）から
// その国のローカル通貨コードへの静的ルックアップテーブル。
// フィードの通貨設定が「ローカル通貨を使用」の場合に参照する。
var countryCurrencies = map[string]string{
	"US": "USD",
	"CA": "CAD",
	"MX": "MXN",
	"BR": "BRL",
	"GB": "GBP",
	"IE": "EUR",
	"DE": "EUR",
	"FR": "EUR",
	"IT": "EUR",
	"ES": "EUR",
	"PT": "EUR",
	"NL": "EUR",
	"BE": "EUR",
	"AT": "EUR",
	"FI": "EUR",
	"GR": "EUR",
	"CH": "CHF",
	"SE": "SEK",
	"NO": "NOK",
	"DK": "DKK",
	"PL": "PLN",
	"CZ": "CZK",
	"TR": "TRY",
	"AE": "AED",
	"IN": "INR",
	"CN": "CNY",
	"JP": "JPY",
	"KR": "KRW",
	"HK": "HKD",
	"SG": "SGD",
	"AU": "AUD",
	"NZ": "NZD",
}

// exchangeRates はEURを基準単位とした静的為替レートテーブル。
// 1 EUR = rate の関係。リアルタイムレートの取得はスコープ外であり、
// 静的テーブルによる近似を許容する。
var exchangeRates = map[string]float64{
	"EUR": 1.0,
	"USD": 1.08,
	"CAD": 1.47,
	"MXN": 19.7,
	"BRL": 6.0,
	"GBP": 0.85,
	"CHF": 0.95,
	"SEK": 11.4,
	"NOK": 11.6,
	"DKK": 7.46,
	"PLN": 4.3,
	"CZK": 25.2,
	"TRY": 35.0,
	"AED": 3.97,
	"INR": 90.5,
	"CNY": 7.8,
	"JPY": 160.0,
	"KRW": 1480.0,
	"HKD": 8.4,
	"SGD": 1.45,
	"AUD": 1.64,
	"NZD": 1.78,
}

// CurrencyForCountry は国コードからローカル通貨コードを導出する。
// テーブルにない国の場合は空文字列とfalseを返す。
func CurrencyForCountry(countryCode string) (string, bool) {
	code, ok := countryCurrencies[countryCode]
	return code, ok
}
