package pricerule

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluator_Apply(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
		lines []Line
		want  []AppliedRule
	}{
		{
			name:  "no rules",
			lines: []Line{{ProductID: "p1", UnitPrice: d("100"), Quantity: 3}},
		},
		{
			name:  "volume percentage across variants of one product",
			rules: []Rule{volumeRule("v", nil, "10")},
			lines: []Line{
				{ProductID: "p1", UnitPrice: d("100"), Quantity: 2},
				{ProductID: "p1", UnitPrice: d("120"), Quantity: 1},
				{ProductID: "p2", UnitPrice: d("50"), Quantity: 2},
			},
			want: []AppliedRule{{RuleID: "v", Type: TypeVolume, Discount: d("32")}},
		},
		{
			name: "volume fixed flat applies once per product",
			rules: []Rule{{
				ID: "v", Type: TypeVolume, AppliesTo: ScopeAll,
				Conditions: Conditions{Volume: &VolumeConditions{
					DiscountType: DiscountFixed, TierMode: TierFlat,
					Tiers: []Tier{{MinQuantity: 2, DiscountValue: d("15")}},
				}},
			}},
			lines: []Line{{ProductID: "p1", UnitPrice: d("100"), Quantity: 4}},
			want:  []AppliedRule{{RuleID: "v", Type: TypeVolume, Discount: d("15")}},
		},
		{
			name: "volume fixed graduated applies per unit and caps at line amount",
			rules: []Rule{{
				ID: "v", Type: TypeVolume, AppliesTo: ScopeAll,
				Conditions: Conditions{Volume: &VolumeConditions{
					DiscountType: DiscountFixed, TierMode: TierGraduated,
					Tiers: []Tier{{MinQuantity: 2, DiscountValue: d("15")}},
				}},
			}},
			lines: []Line{
				{ProductID: "p1", UnitPrice: d("100"), Quantity: 3},
				{ProductID: "p2", UnitPrice: d("10"), Quantity: 2},
			},
			want: []AppliedRule{{RuleID: "v", Type: TypeVolume, Discount: d("65")}},
		},
		{
			name: "bogo same product",
			rules: []Rule{{
				ID: "b", Title: "3x2", Type: TypeBogo, AppliesTo: ScopeAll,
				Conditions: Conditions{Bogo: &BogoConditions{
					BuyQuantity: 2, GetQuantity: 1, GetDiscountPercentage: d("100"), Mode: BogoSameProduct,
				}},
			}},
			lines: []Line{
				{ProductID: "p1", UnitPrice: d("100"), Quantity: 7},
				{ProductID: "p2", UnitPrice: d("10"), Quantity: 2},
			},
			want: []AppliedRule{{RuleID: "b", Title: "3x2", Type: TypeBogo, Discount: d("200")}},
		},
		{
			name: "bogo different products discounts cheapest units",
			rules: []Rule{{
				ID: "b", Type: TypeBogo, AppliesTo: ScopeAll,
				Conditions: Conditions{Bogo: &BogoConditions{
					BuyQuantity: 1, GetQuantity: 1, GetDiscountPercentage: d("50"), Mode: BogoDifferentProducts,
				}},
			}},
			lines: []Line{
				{ProductID: "p1", UnitPrice: d("100"), Quantity: 1},
				{ProductID: "p2", UnitPrice: d("40"), Quantity: 1},
				{ProductID: "p3", UnitPrice: d("60"), Quantity: 2},
			},
			// 4 units, 2 discounted: 40 and 60 at 50%.
			want: []AppliedRule{{RuleID: "b", Type: TypeBogo, Discount: d("50")}},
		},
		{
			name: "bogo percentage above 100 caps at free units",
			rules: []Rule{{
				ID: "b", Type: TypeBogo, AppliesTo: ScopeAll,
				Conditions: Conditions{Bogo: &BogoConditions{
					BuyQuantity: 1, GetQuantity: 1, GetDiscountPercentage: d("250"),
				}},
			}},
			lines: []Line{{ProductID: "p1", UnitPrice: d("80"), Quantity: 2}},
			want:  []AppliedRule{{RuleID: "b", Type: TypeBogo, Discount: d("80")}},
		},
		{
			name: "free shipping achieved counts bundles",
			rules: []Rule{{
				ID: "s", Type: TypeFreeShipping,
				Conditions: Conditions{FreeShipping: &FreeShippingConditions{MinSubtotal: ptr(d("500"))}},
			}},
			lines: []Line{
				{ProductID: "p1", UnitPrice: d("100"), Quantity: 2},
				{ProductID: "b1", UnitPrice: d("300"), Quantity: 1, Bundle: true},
			},
			want: []AppliedRule{{RuleID: "s", Type: TypeFreeShipping, Discount: decimal.Zero}},
		},
		{
			name: "free shipping not achieved",
			rules: []Rule{{
				ID: "s", Type: TypeFreeShipping,
				Conditions: Conditions{FreeShipping: &FreeShippingConditions{MinSubtotal: ptr(d("500"))}},
			}},
			lines: []Line{{ProductID: "p1", UnitPrice: d("100"), Quantity: 2}},
		},
		{
			name: "bundle rule listed with bundle line and volume skips bundles",
			rules: []Rule{
				{ID: "pk", Type: TypeBundle},
				volumeRule("v", nil, "10"),
			},
			lines: []Line{{ProductID: "b1", UnitPrice: d("300"), Quantity: 5, Bundle: true}},
			want:  []AppliedRule{{RuleID: "pk", Type: TypeBundle, Discount: decimal.Zero}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewEvaluator(tt.rules, WithClock(clock)).Apply(tt.lines)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].RuleID, got[i].RuleID)
				assert.Equal(t, tt.want[i].Title, got[i].Title)
				assert.Equal(t, tt.want[i].Type, got[i].Type)
				assert.True(t, tt.want[i].Discount.Equal(got[i].Discount),
					"discount: want %s, got %s", tt.want[i].Discount, got[i].Discount)
			}
		})
	}
}

func TestEvaluator_ApplyFirstRuleWins(t *testing.T) {
	rules := []Rule{
		volumeRule("weak", ptr(2), "5"),
		volumeRule("strong", ptr(1), "20"),
	}
	got := NewEvaluator(rules, WithClock(clock)).Apply([]Line{{ProductID: "p1", UnitPrice: d("100"), Quantity: 3}})
	require.Len(t, got, 1)
	assert.Equal(t, "strong", got[0].RuleID)
	assert.True(t, d("60").Equal(got[0].Discount))
	assert.True(t, d("60").Equal(Discount(got)))
}

func TestAppliedRule_Label(t *testing.T) {
	assert.Equal(t, AppliedBogoFallback, AppliedRule{Type: TypeBogo}.Label())
	assert.Equal(t, FreeShippingFallback, AppliedRule{Type: TypeFreeShipping}.Label())
	assert.Equal(t, "Verano", AppliedRule{Type: TypeVolume, Title: "Verano"}.Label())
}
