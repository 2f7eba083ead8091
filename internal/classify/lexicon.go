package classify

// Category ids assigned by the classifier.
const (
	CategoryFood          = "food"
	CategoryTransport     = "transport"
	CategoryShopping      = "shopping"
	CategoryUtilities     = "utilities"
	CategoryHealth        = "health"
	CategoryEntertainment = "entertainment"
	CategoryEducation     = "education"
	CategoryDonation      = "donation"
	CategoryOther         = "other"
)

// categoryOrder fixes the iteration order for keyword matching so the
// classifier stays deterministic.
var categoryOrder = []string{
	CategoryFood,
	CategoryTransport,
	CategoryHealth,
	CategoryEntertainment,
	CategoryShopping,
	CategoryUtilities,
	CategoryEducation,
	CategoryDonation,
}

// Categories lists every category id, the default "other" last.
func Categories() []string {
	return append(append([]string{}, categoryOrder...), CategoryOther)
}

// Valid reports whether id is a known category.
func Valid(id string) bool {
	if id == CategoryOther {
		return true
	}
	for _, c := range categoryOrder {
		if c == id {
			return true
		}
	}
	return false
}

// merchants maps known merchant names to categories. Mostly
// Kazakhstani chains plus the international ones that show up on local
// receipts. Matching is case- and diacritic-insensitive.
var merchants = map[string]string{
	"magnum":        CategoryFood,
	"магнум":        CategoryFood,
	"small":         CategoryFood,
	"смолл":         CategoryFood,
	"anvar":         CategoryFood,
	"galmart":       CategoryFood,
	"galamart":      CategoryFood,
	"галамарт":      CategoryFood,
	"carrefour":     CategoryFood,
	"starbucks":     CategoryFood,
	"kfc":           CategoryFood,
	"mcdonalds":     CategoryFood,
	"burger king":   CategoryFood,
	"subway":        CategoryFood,
	"costa":         CategoryFood,
	"yandex":        CategoryTransport,
	"яндекс":        CategoryTransport,
	"uber":          CategoryTransport,
	"indriver":      CategoryTransport,
	"sinooil":       CategoryTransport,
	"helios":        CategoryTransport,
	"beeline":       CategoryUtilities,
	"activ":         CategoryUtilities,
	"altel":         CategoryUtilities,
	"tele2":         CategoryUtilities,
	"kcell":         CategoryUtilities,
	"kazakhtelecom": CategoryUtilities,
	"казахтелеком":  CategoryUtilities,
	"europharma":    CategoryHealth,
	"биосфера":      CategoryHealth,
	"садыхан":       CategoryHealth,
	"zara":          CategoryShopping,
	"h&m":           CategoryShopping,
	"uniqlo":        CategoryShopping,
	"lcwaikiki":     CategoryShopping,
	"sulpak":        CategoryShopping,
	"technodom":     CategoryShopping,
	"технодом":      CategoryShopping,
	"wildberries":   CategoryShopping,
	"ozon":          CategoryShopping,
	"kinopark":      CategoryEntertainment,
	"kinoplex":      CategoryEntertainment,
	"marwin":        CategoryEducation,
	"меломан":       CategoryEducation,
	"kaspi":         CategoryOther,
	"halyk":         CategoryOther,
}

// keywords maps each category to description keywords in Russian,
// Kazakh and English. Matching is substring-based over folded text, in
// slice order.
var keywords = map[string][]string{
	CategoryFood: {
		"еда", "продукт", "обед", "завтрак", "ужин", "кафе", "ресторан",
		"супермаркет", "магазин", "пицц", "суши", "шаурма", "бургер",
		"кофе", "столовая", "выпечка", "хлеб", "молоко", "мясо", "овощи",
		"фрукты", "тамақ", "азық-түлік", "түскі ас", "таңғы ас", "кешкі ас",
		"дүкен", "мейрамхана", "food", "groceries", "grocery", "restaurant",
		"cafe", "coffee", "pizza", "lunch", "dinner", "breakfast",
	},
	CategoryTransport: {
		"такси", "транспорт", "автобус", "метро", "трамвай", "бензин",
		"заправка", "азс", "парковка", "проезд", "поездка", "билет",
		"поезд", "самолет", "аэропорт", "вокзал", "көлік", "жол",
		"taxi", "bus", "fuel", "petrol", "gas station", "parking",
		"transport", "train", "flight",
	},
	CategoryHealth: {
		"аптека", "лекарств", "таблетк", "врач", "больница", "клиника",
		"поликлиника", "стоматолог", "анализ", "узи", "мрт", "витамин",
		"денсаулық", "дәріхана", "дәрі", "дәрігер", "аурухана", "емхана",
		"pharmacy", "medicine", "doctor", "clinic", "hospital", "dentist",
		"health",
	},
	CategoryEntertainment: {
		"кино", "театр", "концерт", "игр", "фитнес", "спортзал", "боулинг",
		"караоке", "клуб", "отдых", "развлечени", "ойын-сауық",
		"cinema", "movie", "concert", "gym", "fitness", "bowling",
		"karaoke", "netflix", "spotify", "steam",
	},
	CategoryShopping: {
		"одежда", "обувь", "покупк", "техника", "электроника", "косметика",
		"парфюм", "мебель", "киім", "аяқ киім", "сатып алу",
		"clothes", "shoes", "shopping", "electronics", "cosmetics",
		"perfume", "furniture",
	},
	CategoryUtilities: {
		"коммуналк", "коммунальн", "квартплата", "жкх", "интернет",
		"телефон", "связь", "электричеств", "свет", "вода", "газ",
		"мобильн", "сотов", "коммуналдық", "байланыс", "жарық", "су",
		"internet", "utility", "utilities", "electricity", "water",
		"mobile", "phone bill",
	},
	CategoryEducation: {
		"образовани", "учеба", "курс", "книг", "школа", "университет",
		"репетитор", "білім", "оқу", "кітап", "мектеп",
		"education", "course", "book", "school", "university", "tuition",
		"coursera", "udemy",
	},
	CategoryDonation: {
		"садака", "садақа", "пожертвовани", "благотворительн", "мечеть",
		"мешіт", "церковь", "храм", "фонд", "помощь", "көмек",
		"қайырымдылық", "закят", "зекет", "фитр", "фітір", "пітір",
		"donation", "charity", "mosque", "church", "zakat", "sadaqa",
	},
}
