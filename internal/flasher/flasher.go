package flasher

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/bigbag/ch579-flasher/internal/target"
)

// ProgressCallback is called to report flash progress.
type ProgressCallback func(current, total int)

// VerifyError reports the first word that read back wrong.
type VerifyError struct {
	Address  uint32
	Expected uint32
	Actual   uint32
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify mismatch at 0x%08X: expected 0x%08X, got 0x%08X", e.Address, e.Expected, e.Actual)
}

// Flasher writes images into one flash region of a target.
type Flasher struct {
	t        target.Target
	region   *target.FlashRegion
	progress ProgressCallback
}

// New creates a new Flasher for the given region.
func New(t target.Target, region *target.FlashRegion) *Flasher {
	return &Flasher{t: t, region: region}
}

// SetProgressCallback sets the progress callback function.
func (f *Flasher) SetProgressCallback(cb ProgressCallback) {
	f.progress = cb
}

// reportProgress calls the progress callback if set.
func (f *Flasher) reportProgress(current, total int) {
	if f.progress != nil {
		f.progress(current, total)
	}
}

func (f *Flasher) checkRange(address uint32, size int) error {
	if size < 0 || !f.region.Contains(address, uint32(size)) {
		return fmt.Errorf("%w: [0x%08X, +0x%X) not within %s", target.ErrOutOfRange, address, size, f.region)
	}
	return nil
}

// session runs fn between Prepare and Done. Done runs even when fn fails.
func (f *Flasher) session(ctx context.Context, fn func() error) (err error) {
	ctrl := f.region.Controller
	if err := ctrl.Prepare(ctx); err != nil {
		return fmt.Errorf("prepare failed: %w", err)
	}
	defer func() {
		if derr := ctrl.Done(ctx); derr != nil {
			err = errors.Join(err, fmt.Errorf("done failed: %w", derr))
		}
	}()
	return fn()
}

func (f *Flasher) eraseBlocks(ctx context.Context, address, end uint32) error {
	bs := f.region.BlockSize
	for blk := f.region.BlockAlign(address); blk < end; blk += bs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.region.Controller.Erase(ctx, blk, bs); err != nil {
			return fmt.Errorf("erase block 0x%08X failed: %w", blk, err)
		}
	}
	return nil
}

// EraseRange erases every block touched by [address, address+length).
func (f *Flasher) EraseRange(ctx context.Context, address, length uint32) error {
	if length == 0 {
		return nil
	}
	if err := f.checkRange(address, int(length)); err != nil {
		return err
	}
	glog.V(1).Infof("erase range 0x%08X +0x%X", address, length)
	return f.session(ctx, func() error {
		return f.eraseBlocks(ctx, address, address+length)
	})
}

// FlashImage erases the blocks covering data and programs it at address.
func (f *Flasher) FlashImage(ctx context.Context, data []byte, address uint32, verify bool) error {
	return f.flash(ctx, []Image{{Address: address, Data: data, Name: "image"}}, verify)
}

// flash programs all images in one session. Blocks shared by several images
// are erased once, before anything is written.
func (f *Flasher) flash(ctx context.Context, images []Image, verify bool) error {
	ws := f.region.WriteSize
	totalSize := 0
	padded := make([][]byte, len(images))
	for i, img := range images {
		if img.Address%ws != 0 {
			return fmt.Errorf("%s: address 0x%08X is not aligned to %d bytes", img.Name, img.Address, ws)
		}
		if err := f.checkRange(img.Address, len(img.Data)); err != nil && len(img.Data) > 0 {
			return fmt.Errorf("%s: %w", img.Name, err)
		}
		padded[i] = f.pad(img.Data)
		totalSize += len(img.Data)
	}
	if totalSize == 0 {
		return nil
	}

	err := f.session(ctx, func() error {
		erased := make(map[uint32]bool)
		for i, img := range images {
			if len(img.Data) == 0 {
				continue
			}
			end := img.Address + uint32(len(padded[i]))
			for blk := f.region.BlockAlign(img.Address); blk < end; blk += f.region.BlockSize {
				if erased[blk] {
					continue
				}
				if err := f.eraseBlocks(ctx, blk, blk+1); err != nil {
					return err
				}
				erased[blk] = true
			}
		}

		done := 0
		for i, img := range images {
			glog.V(1).Infof("flash %s 0x%08X +0x%X", img.Name, img.Address, len(img.Data))
			image := padded[i]
			for off := 0; off < len(image); off += int(ws) {
				if err := ctx.Err(); err != nil {
					return err
				}
				chunk := image[off : off+int(ws)]
				if !f.erased(chunk) {
					dest := img.Address + uint32(off)
					if err := f.region.Controller.Write(ctx, dest, chunk); err != nil {
						return fmt.Errorf("%s: write 0x%08X failed: %w", img.Name, dest, err)
					}
				}
				f.reportProgress(done+min(off+int(ws), len(img.Data)), totalSize)
			}
			done += len(img.Data)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if verify {
		for i, img := range images {
			if err := f.verifyFlash(padded[i], img.Address); err != nil {
				return fmt.Errorf("%s: verification failed: %w", img.Name, err)
			}
		}
	}
	return nil
}

// pad extends data to a whole number of write units with the erased value.
func (f *Flasher) pad(data []byte) []byte {
	ws := int(f.region.WriteSize)
	n := (len(data) + ws - 1) / ws * ws
	if n == len(data) {
		return data
	}
	padded := make([]byte, n)
	copy(padded, data)
	for i := len(data); i < n; i++ {
		padded[i] = f.region.Erased
	}
	return padded
}

func (f *Flasher) erased(chunk []byte) bool {
	for _, b := range chunk {
		if b != f.region.Erased {
			return false
		}
	}
	return true
}

// verifyFlash reads the image back word by word.
func (f *Flasher) verifyFlash(image []byte, address uint32) error {
	for off := 0; off+4 <= len(image); off += 4 {
		addr := address + uint32(off)
		want := binary.LittleEndian.Uint32(image[off:])
		got := f.t.Read32(addr)
		if err := f.t.CheckError(); err != nil {
			return target.TransportError(err)
		}
		if got != want {
			return &VerifyError{Address: addr, Expected: want, Actual: got}
		}
	}
	return nil
}

// Image is a piece of firmware to flash.
type Image struct {
	Address uint32
	Data    []byte
	Name    string
}

// FlashMultiple flashes multiple images in one programming session.
func (f *Flasher) FlashMultiple(ctx context.Context, images []Image, verify bool) error {
	return f.flash(ctx, images, verify)
}
