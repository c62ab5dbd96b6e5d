package auction

import (
	"fmt"
	"math/rand"
	"sync"
)

// promoTemplates are rotated into the auction channel while bidding is
// quiet. Placeholders: item name, formatted leading bid.
var promoTemplates = []string{
	"⏳ Still time to grab **%s**! Leading bid sits at %s.",
	"🔥 **%s** is up for grabs — can anyone beat %s?",
	"📢 Going quiet on **%s**... current bid %s. Last calls?",
	"💰 **%s** won't wait forever! Top the %s bid while you can.",
	"👀 Eyes on **%s** — %s is the number to beat.",
}

// promoPicker selects a random prompt template. Guarded because monitor
// goroutines for different auctions share one picker.
type promoPicker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newPromoPicker(seed int64) *promoPicker {
	return &promoPicker{rng: rand.New(rand.NewSource(seed))}
}

func (p *promoPicker) Pick(itemName, bidText string) string {
	p.mu.Lock()
	template := promoTemplates[p.rng.Intn(len(promoTemplates))]
	p.mu.Unlock()

	return fmt.Sprintf(template, itemName, bidText)
}
