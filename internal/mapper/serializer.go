package mapper

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/hitoshi/shopfeed/internal/model"
)

// googleNamespace はGoogle Shoppingフィードのベンダー名前空間。
const googleNamespace = "http://base.google.com/ns/1.0"

// Serializer はマッピング済みアイテム集合をRSS 2.0形式の
// フィードドキュメントにシリアライズする。
// アイテムが0件でも整形式のドキュメントを生成する。
type Serializer struct{}

// NewSerializer はSerializerの新しいインスタンスを生成する。
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Serialize はフィードのエンベロープとアイテム集合からXMLドキュメントを生成する。
// チャネルにはロケール別のタイトルを含め、テキストコンテンツは
// XMLの予約文字5種をエスケープして出力する。
func (s *Serializer) Serialize(feed *model.Feed, shopDomain string, items []Item) []byte {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(fmt.Sprintf(`<rss version="2.0" xmlns:g="%s">`, googleNamespace))
	buf.WriteString("\n  <channel>\n")

	writeElement(&buf, "title", channelTitle(feed), 4)
	writeElement(&buf, "link", fmt.Sprintf("https://%s", shopDomain), 4)
	writeElement(&buf, "description",
		fmt.Sprintf("%s product feed (%s-%s)", feed.Channel, feed.Language, strings.ToUpper(feed.Country)), 4)

	for i := range items {
		s.writeItem(&buf, &items[i])
	}

	buf.WriteString("  </channel>\n</rss>\n")
	return buf.Bytes()
}

// channelTitle はロケールを含むチャネルタイトルを構築する。
func channelTitle(feed *model.Feed) string {
	return fmt.Sprintf("%s (%s-%s)", feed.Name, feed.Language, strings.ToUpper(feed.Country))
}

// writeItem は1アイテムを出力する。
// title/link/descriptionは素のRSS要素、それ以外はg:名前空間の要素として出力し、
// 省略可能フィールド（セール価格・GTIN・MPN）は空の場合出力しない。
func (s *Serializer) writeItem(buf *bytes.Buffer, item *Item) {
	buf.WriteString("    <item>\n")

	writeElement(buf, "g:id", item.ID, 6)
	writeElement(buf, "g:item_group_id", item.ItemGroupID, 6)
	writeElement(buf, "title", item.Title, 6)
	writeElement(buf, "description", item.Description, 6)
	writeElement(buf, "link", item.Link, 6)
	if item.ImageLink != "" {
		writeElement(buf, "g:image_link", item.ImageLink, 6)
	}
	writeElement(buf, "g:availability", item.Availability, 6)
	writeElement(buf, "g:price", item.Price, 6)
	if item.SalePrice != "" {
		writeElement(buf, "g:sale_price", item.SalePrice, 6)
	}
	if item.GoogleProductCategory != "" {
		writeElement(buf, "g:google_product_category", item.GoogleProductCategory, 6)
	}
	if item.ProductType != "" {
		writeElement(buf, "g:product_type", item.ProductType, 6)
	}
	if item.Brand != "" {
		writeElement(buf, "g:brand", item.Brand, 6)
	}
	if item.GTIN != "" {
		writeElement(buf, "g:gtin", item.GTIN, 6)
	}
	if item.MPN != "" {
		writeElement(buf, "g:mpn", item.MPN, 6)
	}
	writeElement(buf, "g:identifier_exists", yesNo(item.IdentifierExists), 6)
	writeElement(buf, "g:condition", item.Condition, 6)

	for _, custom := range item.Custom {
		if custom.Name == "" {
			continue
		}
		writeElement(buf, "g:"+custom.Name, custom.Value, 6)
	}

	buf.WriteString("    </item>\n")
}

// writeElement はテキストをエスケープして1要素を出力する。
func writeElement(buf *bytes.Buffer, name, value string, indent int) {
	buf.WriteString(strings.Repeat(" ", indent))
	buf.WriteString("<" + name + ">")
	xml.EscapeText(buf, []byte(value))
	buf.WriteString("</" + name + ">\n")
}

// yesNo は真偽値を出力スキーマのyes/no表現に変換する。
func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
