package source

import (
	"context"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// hiddenCategories are navigation links that are not categories of their own.
var hiddenCategories = []string{"new", "all"}

// Categories returns the shop categories.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	doc, err := c.document(ctx, c.ShopURL+"/shop/all")
	if err != nil {
		return nil, err
	}

	var categories []Category
	doc.Find("#nav-categories a").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		name := href[strings.LastIndex(href, "/")+1:]
		if slices.Contains(hiddenCategories, name) {
			return
		}
		categories = append(categories, Category{
			Label: strings.TrimSpace(s.Text()),
			Name:  name,
		})
	})
	if categories == nil {
		categories = []Category{}
	}
	return categories, nil
}

// CategoryProducts returns the products of a shop category.
func (c *Client) CategoryProducts(ctx context.Context, category string) ([]Product, error) {
	doc, err := c.document(ctx, c.ShopURL+"/shop/all/"+url.PathEscape(category))
	if err != nil {
		return nil, err
	}

	articles := doc.Find("article")
	products := make([]Product, 0, articles.Length())
	var extractErr error
	articles.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, err := requiredAttr(s, "a", "href")
		if err != nil {
			extractErr = err
			return false
		}
		src, err := requiredAttr(s, "img", "src")
		if err != nil {
			extractErr = err
			return false
		}

		products = append(products, Product{
			URL:      href,
			Name:     s.Find("h1").First().Text(),
			Color:    s.Find("p").First().Text(),
			SoldOut:  s.Find(".sold_out_tag").Length() >= 1,
			Category: category,
			ImageURL: resolveURL(c.ShopURL, src),
		})
		return true
	})
	if extractErr != nil {
		return nil, extractErr
	}
	return products, nil
}
