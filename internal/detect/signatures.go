package detect

// Signature fingerprints a site platform from raw page markup. Markers
// are matched case-insensitively against the HTML; the first signature
// with a hit wins. ItemSelectors are the listing-card selectors that
// platform's real-estate themes conventionally use, tried in order.
type Signature struct {
	Platform      string
	Markers       []string
	ItemSelectors []string
}

// signatures is scanned in order; more specific platforms come first.
var signatures = []Signature{
	{
		Platform: "wordpress",
		Markers: []string{
			"wp-content/",
			"wp-includes/",
			`name="generator" content="wordpress`,
		},
		ItemSelectors: []string{
			"article.property", ".property-item", ".listing-item",
			"article.post", ".annonce",
		},
	},
	{
		Platform: "wix",
		Markers: []string{
			"static.wixstatic.com",
			"wix.com",
			"x-wix-",
		},
		ItemSelectors: []string{
			"[data-testid=\"gallery-item\"]", ".gallery-item",
		},
	},
	{
		Platform: "shopify",
		Markers: []string{
			"cdn.shopify.com",
			"shopify.theme",
		},
		ItemSelectors: []string{
			".product-card", ".grid-product", ".product-item",
		},
	},
	{
		Platform: "prestashop",
		Markers: []string{
			"prestashop",
			"/modules/ps_",
		},
		ItemSelectors: []string{
			".product-miniature", ".product-container",
		},
	},
	{
		Platform: "joomla",
		Markers: []string{
			"/media/jui/",
			`name="generator" content="joomla`,
		},
		ItemSelectors: []string{
			".item-page", ".items-row .item", ".annonce",
		},
	},
	{
		Platform: "drupal",
		Markers: []string{
			"drupal.settings",
			"drupal.js",
			"sites/default/files",
		},
		ItemSelectors: []string{
			".node--type-property", ".views-row", ".node-listing",
		},
	},
}
