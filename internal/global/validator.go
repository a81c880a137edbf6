package global

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// InitValidator khởi tạo validator instance và đăng ký các rule tùy biến.
func InitValidator() {
	validateOnce.Do(func() {
		validate = validator.New()

		// number_list: mảng số vé hợp lệ (dương, không quá 10k phần tử mỗi request)
		_ = validate.RegisterValidation("number_list", func(fl validator.FieldLevel) bool {
			numbers, ok := fl.Field().Interface().([]int64)
			if !ok {
				return false
			}
			if len(numbers) == 0 || len(numbers) > 10000 {
				return false
			}
			for _, n := range numbers {
				if n < 1 {
					return false
				}
			}
			return true
		})
	})
}

// GetValidator trả về validator instance (init nếu chưa có).
func GetValidator() *validator.Validate {
	if validate == nil {
		InitValidator()
	}
	return validate
}
