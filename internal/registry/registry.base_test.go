package registry

import (
	"errors"
	"sort"
	"testing"

	"github.com/Jose00521/Raffle-sub003/internal/common"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry[int]()

	isNew, err := r.Register("campaigns", 1)
	if err != nil || !isNew {
		t.Errorf("Đăng ký lần đầu phải isNew=true, err=nil; nhận isNew=%v err=%v", isNew, err)
	}

	// Đăng ký trùng tên là ghi đè
	isNew, err = r.Register("campaigns", 2)
	if err != nil || isNew {
		t.Errorf("Đăng ký trùng tên phải isNew=false; nhận isNew=%v err=%v", isNew, err)
	}
	if got, ok := r.Get("campaigns"); !ok || got != 2 {
		t.Errorf("Get sau khi ghi đè phải trả 2, nhận %v (ok=%v)", got, ok)
	}

	if _, err := r.Register("", 3); !errors.Is(err, common.ErrRequiredField) {
		t.Errorf("Tên rỗng phải bị từ chối với ErrRequiredField, nhận %v", err)
	}
}

func TestRegistry_MustGet(t *testing.T) {
	r := NewRegistry[string]()
	r.Register("payments", "col")

	if got, err := r.MustGet("payments"); err != nil || got != "col" {
		t.Errorf("MustGet item tồn tại: nhận %q, err=%v", got, err)
	}

	got, err := r.MustGet("unknown")
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("MustGet item không tồn tại phải là ErrNotFound, nhận %v", err)
	}
	if got != "" {
		t.Errorf("MustGet lỗi phải trả zero value, nhận %q", got)
	}
}

func TestRegistry_RemoveNamesCount(t *testing.T) {
	r := NewRegistry[int]()
	r.Register("a", 1)
	r.Register("b", 2)
	r.Register("c", 3)

	if r.Count() != 3 {
		t.Fatalf("Count phải là 3, nhận %d", r.Count())
	}

	if !r.Remove("b") {
		t.Error("Remove item tồn tại phải trả true")
	}
	if r.Remove("b") {
		t.Error("Remove lần hai phải trả false")
	}

	names := r.Names()
	sort.Strings(names)
	if len(names) != 2 || names[0] != "a" || names[1] != "c" {
		t.Errorf("Names sau khi xóa b: %v", names)
	}
	if r.Count() != 2 {
		t.Errorf("Count sau khi xóa phải là 2, nhận %d", r.Count())
	}
}
