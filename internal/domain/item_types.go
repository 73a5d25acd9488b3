package domain

type Kind string

func (k Kind) String() string {
	return string(k)
}

const (
	KindItem     Kind = "ITEM"     // Sellable items
	KindModifier Kind = "MODIFIER" // Modifiers and options
	KindCombo    Kind = "COMBO"    // Combos and meal deals
	KindBundle   Kind = "BUNDLE"   // Bundled products
	KindCategory Kind = "CATEGORY" // Category placeholders
)

var Kinds = []Kind{
	KindItem,
	KindModifier,
	KindCombo,
	KindBundle,
	KindCategory,
}

func (k Kind) GetKindName() string {
	switch k {
	case KindItem:
		return "Items"
	case KindModifier:
		return "Modifiers"
	case KindCombo:
		return "Combos"
	case KindBundle:
		return "Bundles"
	case KindCategory:
		return "Categories"
	default:
		return "Unknown"
	}
}

// Valid reports whether k is one of the known product kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}
