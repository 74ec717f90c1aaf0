package models

// ProductSummary is one listing-page entry. It seeds a detail visit and is
// never persisted on its own.
type ProductSummary struct {
	Page          int
	Name          string
	ListPriceText string
	ThumbnailURL  string
	DetailURL     string
	Code          string
}

type OptionValue struct {
	Path       string
	Label      string
	Text       string // raw choice text as rendered, delta suffix included
	PriceDelta int
	ImageURL   string
	SoldOut    bool
}

type OptionGroup struct {
	ID     string
	Title  string
	Values []OptionValue
}

// ProductDetail holds what was read from a detail page before normalization.
// Fields that could not be located keep their zero value.
type ProductDetail struct {
	Code          string
	DeliveryPrice int
	ReturnPrice   int
	ChangePrice   int
	OptionGroups  []OptionGroup
	GalleryURLs   []string
	Partial       bool
}

type OptionComb struct {
	Path      string `json:"path" bson:"path"`
	Price     int    `json:"price" bson:"price"`
	Img       string `json:"img" bson:"img"`
	IsSoldout bool   `json:"is_soldout" bson:"is_soldout"`
}

type OptionInfoValue struct {
	Path      string `json:"path" bson:"path"`
	Name      string `json:"name" bson:"name"`
	Img       string `json:"img" bson:"img"`
	IsSoldout bool   `json:"is_soldout" bson:"is_soldout"`
}

type OptionInfo struct {
	Title string            `json:"title" bson:"title"`
	Body  []OptionInfoValue `json:"body" bson:"body"`
}

// ProductRecord is the canonical persisted document. Field order and names
// are part of the output format.
type ProductRecord struct {
	Idx                 int          `json:"idx" bson:"idx"`
	ProductID           string       `json:"product_id" bson:"product_id"`
	OriginPath          string       `json:"origin_path" bson:"origin_path"`
	ProductName         string       `json:"product_name" bson:"product_name"`
	ProductPrice        int          `json:"product_price" bson:"product_price"`
	ProductOriginPrice  int          `json:"product_origin_price" bson:"product_origin_price"`
	ProductMinimumPrice int          `json:"product_minimum_price" bson:"product_minimum_price"`
	CurrencyUnit        string       `json:"currency_unit" bson:"currency_unit"`
	DeliveryPrice       int          `json:"delivery_price" bson:"delivery_price"`
	ReturnPrice         int          `json:"return_price" bson:"return_price"`
	ChangePrice         int          `json:"change_price" bson:"change_price"`
	OptionCombList      []OptionComb `json:"option_comb_list" bson:"option_comb_list"`
	OptionInfoList      []OptionInfo `json:"option_info_list" bson:"option_info_list"`
	KeywordList         []string     `json:"keyword_list" bson:"keyword_list"`
	ThumbnailImg        string       `json:"thumbnail_img" bson:"thumbnail_img"`
	MainImg             string       `json:"main_img" bson:"main_img"`
	ProductImgList      []string     `json:"product_img_list" bson:"product_img_list"`
	ProductInfoImgList  []string     `json:"product_info_img_list" bson:"product_info_img_list"`
	State               int          `json:"state" bson:"state"`
	IsDiscount          int          `json:"is_discount" bson:"is_discount"`
	IsSoldout           int          `json:"is_soldout" bson:"is_soldout"`
	IsImgSave           int          `json:"is_img_save" bson:"is_img_save"`
	DiscountPer         int          `json:"discount_per" bson:"discount_per"`
	DeliveryInfo        string       `json:"delivery_info" bson:"delivery_info"`
}

type MediaKind string

const (
	MediaThumbnail MediaKind = "thumbnail"
	MediaGallery   MediaKind = "gallery"
)

// MediaItem is one image planned for a product directory.
type MediaItem struct {
	Kind  MediaKind
	URL   string
	Path  string
	Saved bool
}

type MediaManifest struct {
	Dir   string
	Items []MediaItem
}

func (m MediaManifest) SavedCount() int {
	n := 0
	for _, it := range m.Items {
		if it.Saved {
			n++
		}
	}
	return n
}

// AllSaved reports whether at least one image was planned and every one
// of them was written.
func (m MediaManifest) AllSaved() bool {
	return len(m.Items) > 0 && m.SavedCount() == len(m.Items)
}
