package convo

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"salesbot/internal/repo"
)

const maxCandidates = 5

var qtyRegex = regexp.MustCompile(`\d+`)

type scoredProduct struct {
	Product repo.Product
	Score   int
}

// rankProducts scores catalog rows against the free-text query and returns
// the best matches, in-stock items first, cheaper items breaking ties.
func rankProducts(products []repo.Product, query string) []repo.Product {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		res := make([]repo.Product, len(products))
		copy(res, products)
		sort.Slice(res, func(i, j int) bool {
			if res[i].Category == res[j].Category {
				return res[i].Price < res[j].Price
			}
			return res[i].Category < res[j].Category
		})
		return topN(res, maxCandidates)
	}

	tokens := tokenizeQuery(query)
	var scored []scoredProduct
	for _, product := range products {
		score := matchScore(product, tokens)
		if score > 0 {
			scored = append(scored, scoredProduct{Product: product, Score: score})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score == scored[j].Score {
			left, right := scored[i].Product, scored[j].Product
			if (left.Stock > 0) != (right.Stock > 0) {
				return left.Stock > 0
			}
			return left.Price < right.Price
		}
		return scored[i].Score > scored[j].Score
	})

	top := make([]repo.Product, 0, len(scored))
	for _, sc := range scored {
		top = append(top, sc.Product)
	}
	return topN(top, maxCandidates)
}

func matchScore(product repo.Product, tokens []string) int {
	name := strings.ToLower(product.Name)
	category := strings.ToLower(product.Category)
	description := strings.ToLower(product.Description)

	score := 0
	for _, token := range tokens {
		if token == "" {
			continue
		}
		if name == token {
			score += 6
		}
		if strings.Contains(name, token) {
			score += 4
		}
		if strings.Contains(category, token) {
			score += 3
		}
		if strings.Contains(description, token) {
			score += 1
		}
	}
	return score
}

func tokenizeQuery(query string) []string {
	if query == "" {
		return nil
	}
	query = strings.ReplaceAll(query, ".", " ")
	query = strings.ReplaceAll(query, ",", " ")
	rawTokens := strings.Fields(query)
	tokens := make([]string, 0, len(rawTokens))
	for _, token := range rawTokens {
		token = strings.TrimSpace(strings.ToLower(token))
		if token == "" {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

func topN(products []repo.Product, n int) []repo.Product {
	if len(products) <= n {
		return products
	}
	return products[:n]
}

// parseQty pulls a quantity out of free text, defaulting to 1.
func parseQty(text string) int {
	match := qtyRegex.FindString(text)
	if match == "" {
		return 1
	}
	qty, err := strconv.Atoi(match)
	if err != nil || qty < 1 {
		return 1
	}
	return qty
}

// formatCandidates renders a numbered candidate list the user can pick from.
func formatCandidates(candidates []repo.Product) string {
	var builder strings.Builder
	builder.WriteString("I found these options:\n")
	for i, product := range candidates {
		builder.WriteString(fmt.Sprintf("%d. %s - %.2f", i+1, product.Name, product.Price))
		if product.Stock <= 0 {
			builder.WriteString(" (out of stock)")
		}
		builder.WriteString("\n")
	}
	builder.WriteString("Which one would you like?")
	return builder.String()
}

// formatCart renders the cart with line totals and a grand total.
func formatCart(cart []repo.CartItem) string {
	if len(cart) == 0 {
		return "Your cart is empty."
	}
	var builder strings.Builder
	builder.WriteString("Your cart:\n")
	var total float64
	for _, item := range cart {
		line := item.Price * float64(item.Qty)
		total += line
		builder.WriteString(fmt.Sprintf("- %s x%d - %.2f\n", item.Name, item.Qty, line))
	}
	builder.WriteString(fmt.Sprintf("Total: %.2f", total))
	return builder.String()
}

// pickCandidate resolves a user reply against a pending candidate list,
// accepting an ordinal ("2"), an exact name, or a unique substring match.
func pickCandidate(candidates []repo.Product, text string) (*repo.Product, bool) {
	text = strings.TrimSpace(strings.ToLower(text))
	if text == "" || len(candidates) == 0 {
		return nil, false
	}

	if ord := qtyRegex.FindString(text); ord != "" && strings.TrimSpace(strings.Trim(text, "0123456789. ")) == "" {
		idx, err := strconv.Atoi(ord)
		if err == nil && idx >= 1 && idx <= len(candidates) {
			return &candidates[idx-1], true
		}
	}

	for i := range candidates {
		if strings.ToLower(candidates[i].Name) == text {
			return &candidates[i], true
		}
	}

	var match *repo.Product
	for i := range candidates {
		if strings.Contains(strings.ToLower(candidates[i].Name), text) {
			if match != nil {
				return nil, false
			}
			match = &candidates[i]
		}
	}
	if match != nil {
		return match, true
	}
	return nil, false
}
