// Package invdto - request/response của inventory API.
package invdto

// InitRequest khởi tạo index số cho campaign kèm bản ghi campaign tối thiểu.
type InitRequest struct {
	TotalNumbers int64   `json:"totalNumbers" validate:"required,min=1,max=1000000000"`
	TicketPrice  float64 `json:"ticketPrice" validate:"omitempty,min=0"`
}

// ReserveRequest giữ số: đúng một trong hai nhóm trường được dùng.
// Quantity > 0: chọn ngẫu nhiên; Numbers khác rỗng: giữ đúng các số đó.
type ReserveRequest struct {
	Quantity     int     `json:"quantity" validate:"omitempty,min=1,max=10000"`
	Numbers      []int64 `json:"numbers" validate:"omitempty,number_list"`
	AllowPartial bool    `json:"allowPartial"`
}

// ReleaseRequest trả các số về trạng thái trống.
type ReleaseRequest struct {
	Numbers []int64 `json:"numbers" validate:"required,number_list"`
}

// CheckRequest kiểm tra trạng thái các số.
type CheckRequest struct {
	Numbers []int64 `json:"numbers" validate:"required,number_list"`
}

// CheckResponseItem là trạng thái của một số trong CheckRequest.
type CheckResponseItem struct {
	Number    int64 `json:"number"`
	Available bool  `json:"available"`
}
