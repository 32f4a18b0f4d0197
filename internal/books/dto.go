package books

type CreateBookRequest struct {
	Title  string `json:"title" binding:"required"`
	Author string `json:"author" binding:"required"`
	ISBN   string `json:"isbn" binding:"required"`
	Copies int    `json:"copies"`
}

type UpdateBookRequest struct {
	Title  *string `json:"title,omitempty"`
	Author *string `json:"author,omitempty"`
	ISBN   *string `json:"isbn,omitempty"`
}

type AddCopiesRequest struct {
	Count int `json:"count" binding:"required"`
}

type BookResponse struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"isbn"`
	Copies          int    `json:"copies"`
	AvailableCopies int    `json:"available_copies"`
}

type ReserveResponse struct {
	BookID int64  `json:"book_id"`
	Token  string `json:"token"`
}

type ReleaseRequest struct {
	Token string `json:"token"`
}

type StatsResponse struct {
	Total       int64 `json:"total"`
	TotalCopies int64 `json:"total_copies"`
	Available   int64 `json:"available"`
}

type PopularBookResponse struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	AvailableCopies int    `json:"available_copies"`
	BorrowCount     int64  `json:"borrow_count"`
}
