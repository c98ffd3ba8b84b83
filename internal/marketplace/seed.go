package marketplace

import (
	"time"

	"referlut-marketplace/internal/models"
)

// seedCatalogue builds the fixed local offer list. Loyalty and charity
// listings are not paginated from the upstream source; they are served from
// this catalogue, as are a handful of referral examples shown before the
// first remote page arrives.
func seedCatalogue() []*models.Offer {
	day := func(d int) time.Time {
		return time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
	}

	offers := []*models.Offer{
		{
			ID: "l-starbucks-rewards", Brand: "Starbucks", Type: models.TypeLoyalty,
			Title:       "Starbucks Rewards",
			Description: "Earn 3 Stars for every £1 you spend and get free drinks, food upgrades and exclusive offers. Personalized offers and birthday rewards included.",
			Used:        12, Total: 20, Price: 0,
			Logo:      "https://images.pexels.com/photos/2253643/pexels-photo-2253643.jpeg",
			CreatedAt: day(3),
		},
		{
			ID: "l-tesco-clubcard", Brand: "Tesco", Type: models.TypeLoyalty,
			Title:       "Clubcard",
			Description: "Collect 1 point for every £1 spent in-store and online. Get vouchers worth 2x their value with Clubcard Rewards partners.",
			Used:        45, Total: 100, Price: 0,
			Logo:      "https://images.pexels.com/photos/264636/pexels-photo-264636.jpeg",
			CreatedAt: day(10),
		},
		{
			ID: "l-boots-advantage", Brand: "Boots", Type: models.TypeLoyalty,
			Title:       "Advantage Card",
			Description: "Collect 4 points for every £1 you spend. Points can be redeemed on almost anything in-store, with exclusive member prices and offers.",
			Used:        30, Total: 60, Price: 0,
			Logo:      "https://images.pexels.com/photos/208512/pexels-photo-208512.jpeg",
			CreatedAt: day(17),
		},
		{
			ID: "l-costa-club", Brand: "Costa Coffee", Type: models.TypeLoyalty,
			Title:       "Costa Club",
			Description: "Collect a bean for every drink you buy; your 10th drink is free. Extra treats on your birthday and app-only offers.",
			Used:        8, Total: 25, Price: 0,
			Logo:      "https://images.pexels.com/photos/302899/pexels-photo-302899.jpeg",
			CreatedAt: day(24),
		},
		{
			ID: "l-costco-membership", Brand: "Costco", Type: models.TypeLoyalty,
			Title:       "Costco Membership Share",
			Description: "Shop warehouse prices on groceries, electronics and fuel. Membership gets you access to member-only pricing all year.",
			Used:        3, Total: 6, Price: 15,
			Logo:      "https://images.pexels.com/photos/1005638/pexels-photo-1005638.jpeg",
			CreatedAt: day(31),
		},
		{
			ID: "l-nandos-card", Brand: "Nando's", Type: models.TypeLoyalty,
			Title:       "Nando's Card",
			Description: "Earn a chilli point every time you spend over £7. Collect chillies to unlock free food rewards from a 1/4 chicken up to a whole platter.",
			Used:        14, Total: 40, Price: 0,
			Logo:      "https://images.pexels.com/photos/2338407/pexels-photo-2338407.jpeg",
			CreatedAt: day(38),
		},
		{
			ID: "c-redcross-winter", Brand: "British Red Cross", Type: models.TypeCharity,
			Title:       "Winter Crisis Appeal",
			Description: "Pool donations with other members to support emergency shelter and supplies for people facing crisis in the UK this winter.",
			Used:        18, Total: 50, Price: 5,
			Logo:      "https://images.pexels.com/photos/6646918/pexels-photo-6646918.jpeg",
			CreatedAt: day(5),
		},
		{
			ID: "c-cancer-research", Brand: "Cancer Research UK", Type: models.TypeCharity,
			Title:       "Monthly Giving Pool",
			Description: "Join a pooled monthly donation that funds life-saving research. Every £1 pooled goes further through Gift Aid matching.",
			Used:        27, Total: 100, Price: 3,
			Logo:      "https://images.pexels.com/photos/3259629/pexels-photo-3259629.jpeg",
			CreatedAt: day(12),
		},
		{
			ID: "c-shelter-homes", Brand: "Shelter", Type: models.TypeCharity,
			Title:       "Home for Everyone Fund",
			Description: "Pooled giving toward emergency housing advice and support services. Group donations unlock matched funding from partners.",
			Used:        9, Total: 30, Price: 5,
			Logo:      "https://images.pexels.com/photos/5699516/pexels-photo-5699516.jpeg",
			CreatedAt: day(19),
		},
		{
			ID: "r-monzo-invite", Brand: "Monzo", Type: models.TypeReferral,
			Title:       "£10 for You and a Friend with Monzo",
			Description: "Sign up to Monzo with my link, make a card payment, and we both get £10. Banking that makes money easy.",
			Used:        2, Total: 5, Price: 10,
			Logo:      "https://images.pexels.com/photos/4968630/pexels-photo-4968630.jpeg",
			CreatedAt: day(7),
		},
		{
			ID: "r-revolut-invite", Brand: "Revolut", Type: models.TypeReferral,
			Title:       "Get £50 with Revolut Referral",
			Description: "Open a Revolut account with my referral link, order a card and make three payments to qualify. We both receive £50.",
			Used:        4, Total: 10, Price: 50,
			Logo:      "https://images.pexels.com/photos/4386366/pexels-photo-4386366.jpeg",
			CreatedAt: day(14),
		},
		{
			ID: "r-airbnb-stay", Brand: "Airbnb", Type: models.TypeReferral,
			Title:       "£25 Off Your First Airbnb Stay",
			Description: "Sign up to Airbnb with my link and get £25 off your first stay of £75 or more. I'll receive £15 credit for referring you.",
			Used:        0, Total: 5, Price: 25,
			Logo:      "https://images.pexels.com/photos/2467285/pexels-photo-2467285.jpeg",
			CreatedAt: day(21),
		},
	}

	for _, o := range offers {
		o.RecomputeFeatured()
	}
	return offers
}
