package source

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gosimple/slug"
)

// Drops returns the drop list of the latest season.
func (c *Client) Drops(ctx context.Context) ([]Drop, error) {
	doc, err := c.document(ctx, c.CommunityURL+"/season/latest/droplists/")
	if err != nil {
		return nil, err
	}

	blocks := doc.Find(".block")
	drops := make([]Drop, 0, blocks.Length())
	blocks.Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		text := s.Text()
		drops = append(drops, Drop{
			URL:  href,
			Name: normalizeText(text),
			Slug: slug.Make(strings.TrimSpace(text)),
		})
	})
	return drops, nil
}

// DropProducts returns the products of a drop.
// dropURL is the URL of the drop as returned by Drops, relative to the community site.
func (c *Client) DropProducts(ctx context.Context, dropURL string) ([]DropProduct, error) {
	doc, err := c.document(ctx, c.CommunityURL+dropURL)
	if err != nil {
		return nil, err
	}

	cards := doc.Find(".card-details")
	products := make([]DropProduct, 0, cards.Length())
	var extractErr error
	cards.EachWithBreak(func(_ int, card *goquery.Selection) bool {
		src, err := requiredAttr(card, "img", "src")
		if err != nil {
			extractErr = err
			return false
		}

		name := normalizeText(card.Find(".name").First().Text())
		price := strings.TrimSpace(card.Find(".label-price").First().Text())
		if price == "" {
			price = UnknownPrice
		}
		products = append(products, DropProduct{
			ImageURL: resolveURL(c.CommunityURL, src),
			Name:     name,
			Price:    price,
			Keywords: strings.Fields(name),
			Category: normalizeText(card.Parent().Find(".category").First().Text()),
		})
		return true
	})
	if extractErr != nil {
		return nil, extractErr
	}
	return products, nil
}
