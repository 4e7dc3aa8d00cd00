package domain

import "time"

// CartItem — строка корзины. В корзине не больше одной строки на блюдо.
type CartItem struct {
	DishID   string
	Quantity int
}

// Cart — корзина пользователя. У пользователя ровно одна корзина,
// строки существуют только внутри неё и сохраняются вместе с ней.
type Cart struct {
	ID        string
	UserID    string
	Items     []CartItem
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCart создаёт пустую корзину пользователя.
func NewCart(id, userID string, now time.Time) Cart {
	return Cart{
		ID:        id,
		UserID:    userID,
		Items:     []CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsEmpty сообщает, что в корзине нет строк.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// AddItem увеличивает количество блюда или добавляет новую строку.
// Строка с итоговым количеством <= 0 удаляется.
func (c *Cart) AddItem(dishID string, quantity int) {
	for i := range c.Items {
		if c.Items[i].DishID == dishID {
			c.Items[i].Quantity += quantity
			c.dropEmpty()
			return
		}
	}
	c.Items = append(c.Items, CartItem{DishID: dishID, Quantity: quantity})
	c.dropEmpty()
}

// SetItemQuantity перезаписывает количество у строк блюда.
// Возвращает false, если блюда в корзине нет (корзина не меняется).
func (c *Cart) SetItemQuantity(dishID string, quantity int) bool {
	found := false
	for i := range c.Items {
		if c.Items[i].DishID == dishID {
			c.Items[i].Quantity = quantity
			found = true
		}
	}
	if found {
		c.dropEmpty()
	}
	return found
}

// RemoveItem удаляет все строки блюда. Возвращает false, если удалять было нечего.
func (c *Cart) RemoveItem(dishID string) bool {
	kept := c.Items[:0]
	removed := false
	for _, item := range c.Items {
		if item.DishID == dishID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	c.Items = kept
	return removed
}

// Clear удаляет все строки.
func (c *Cart) Clear() {
	c.Items = []CartItem{}
}

// Clone возвращает копию корзины с отдельным срезом строк.
func (c Cart) Clone() Cart {
	dst := c
	dst.Items = append([]CartItem(nil), c.Items...)
	if dst.Items == nil {
		dst.Items = []CartItem{}
	}
	return dst
}

func (c *Cart) dropEmpty() {
	kept := c.Items[:0]
	for _, item := range c.Items {
		if item.Quantity > 0 {
			kept = append(kept, item)
		}
	}
	c.Items = kept
}
