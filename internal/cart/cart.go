// Package cart keeps per-user shopping carts for tag purchases and fans
// every change out to live subscribers.
package cart

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"upets/platform-service/internal/models"
)

var (
	ErrItemNotFound = errors.New("cart item not found")
	ErrInvalidItem  = errors.New("invalid cart item")
)

type Item struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	QRType    string  `json:"qr_type"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type Cart struct {
	UserID    string    `json:"user_id"`
	Items     []Item    `json:"items"`
	ItemCount int       `json:"item_count"`
	Total     float64   `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

type subscriber struct {
	id int
	ch chan Cart
}

type Store struct {
	mu     sync.Mutex
	carts  map[string]map[string]Item
	stamps map[string]time.Time
	subs   map[string][]subscriber
	nextID int
	now    func() time.Time
}

func NewStore() *Store {
	return &Store{
		carts:  map[string]map[string]Item{},
		stamps: map[string]time.Time{},
		subs:   map[string][]subscriber{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Get(userID string) Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(userID)
}

// AddItem merges quantities for a product already in the cart.
func (s *Store) AddItem(userID string, item Item) (Cart, error) {
	item.ProductID = strings.TrimSpace(item.ProductID)
	if item.ProductID == "" || item.Quantity < 1 || item.UnitPrice < 0 {
		return Cart{}, ErrInvalidItem
	}
	if item.QRType != "" && !models.ValidQRType(item.QRType) {
		return Cart{}, ErrInvalidItem
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.carts[userID]
	if items == nil {
		items = map[string]Item{}
		s.carts[userID] = items
	}
	if existing, ok := items[item.ProductID]; ok {
		existing.Quantity += item.Quantity
		item = existing
	}
	items[item.ProductID] = item
	return s.changed(userID), nil
}

// UpdateQuantity sets the quantity; zero or less removes the item.
func (s *Store) UpdateQuantity(userID, productID string, quantity int) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.carts[userID][productID]
	if !ok {
		return Cart{}, ErrItemNotFound
	}
	if quantity <= 0 {
		delete(s.carts[userID], productID)
	} else {
		item.Quantity = quantity
		s.carts[userID][productID] = item
	}
	return s.changed(userID), nil
}

func (s *Store) RemoveItem(userID, productID string) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.carts[userID][productID]; !ok {
		return Cart{}, ErrItemNotFound
	}
	delete(s.carts[userID], productID)
	return s.changed(userID), nil
}

func (s *Store) Clear(userID string) Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, userID)
	return s.changed(userID)
}

// Subscribe delivers the current cart and every later change. A slow
// reader only sees the latest state. cancel closes the channel.
func (s *Store) Subscribe(userID string) (<-chan Cart, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sub := subscriber{id: s.nextID, ch: make(chan Cart, 1)}
	s.subs[userID] = append(s.subs[userID], sub)
	sub.ch <- s.snapshot(userID)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			list := s.subs[userID]
			for i, candidate := range list {
				if candidate.id == sub.id {
					s.subs[userID] = append(list[:i], list[i+1:]...)
					break
				}
			}
			if len(s.subs[userID]) == 0 {
				delete(s.subs, userID)
			}
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

func (s *Store) changed(userID string) Cart {
	s.stamps[userID] = s.now()
	cart := s.snapshot(userID)
	for _, sub := range s.subs[userID] {
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- cart
	}
	return cart
}

func (s *Store) snapshot(userID string) Cart {
	cart := Cart{UserID: userID, Items: []Item{}, UpdatedAt: s.stamps[userID]}
	for _, item := range s.carts[userID] {
		cart.Items = append(cart.Items, item)
		cart.ItemCount += item.Quantity
		cart.Total += float64(item.Quantity) * item.UnitPrice
	}
	sort.Slice(cart.Items, func(i, j int) bool {
		return cart.Items[i].ProductID < cart.Items[j].ProductID
	})
	return cart
}
