package drivertest

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/tempo/engine/renderer/driver"
)

// Surface builds swapchains that go out of date as soon as Window no longer
// matches their extent, like a real presentation engine after a resize.
type Surface struct {
	Window     *Window
	Device     *Device
	ImageCount int
	// SuboptimalOnResize keeps acquire working after a resize and reports
	// Suboptimal from present instead of OutOfDate from acquire.
	SuboptimalOnResize bool
	// AcquireResults are returned, in order, before normal behavior resumes.
	AcquireResults []driver.Result
	CreateErr      error

	Created          []*Swapchain
	ZeroSizeAttempts int
}

func NewSurface(dev *Device, win *Window) *Surface {
	return &Surface{Window: win, Device: dev, ImageCount: 3}
}

func (s *Surface) CreateSwapchain(extent driver.Extent, old driver.Swapchain) (driver.Swapchain, error) {
	if extent.IsZero() {
		s.ZeroSizeAttempts++
		return nil, fmt.Errorf("zero sized swapchain %dx%d", extent.Width, extent.Height)
	}
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	sc := &Swapchain{
		ID:      len(s.Created),
		Size:    extent,
		Images:  s.ImageCount,
		surface: s,
	}
	if old != nil {
		sc.Retired = old.(*Swapchain)
	}
	s.Created = append(s.Created, sc)
	s.record("create swapchain#%d %dx%d", sc.ID, extent.Width, extent.Height)
	return sc, nil
}

func (s *Surface) Current() *Swapchain {
	if len(s.Created) == 0 {
		return nil
	}
	return s.Created[len(s.Created)-1]
}

func (s *Surface) record(format string, args ...interface{}) {
	if s.Device != nil {
		s.Device.record(format, args...)
	}
}

func (s *Surface) violate(format string, args ...interface{}) {
	if s.Device != nil {
		s.Device.violate(format, args...)
	}
}

type Present struct {
	Swapchain  int
	ImageIndex uint32
	Extent     driver.Extent
}

type Swapchain struct {
	ID        int
	Size      driver.Extent
	Images    int
	Retired   *Swapchain
	Destroyed bool
	Acquires  int
	Presents  []Present
	Targets   []*RenderTarget
	next      uint32
	surface   *Surface
}

func (c *Swapchain) Extent() driver.Extent {
	return c.Size
}

func (c *Swapchain) ImageCount() int {
	return c.Images
}

func (c *Swapchain) stale() bool {
	return c.surface.Window.DrawableSize() != c.Size
}

func (c *Swapchain) AcquireNextImage(signal driver.Semaphore, timeout time.Duration) (uint32, driver.Result) {
	c.Acquires++
	c.surface.record("acquire swapchain#%d", c.ID)
	if c.Destroyed {
		c.surface.violate("acquire on destroyed swapchain#%d", c.ID)
	}
	result := driver.Success
	if len(c.surface.AcquireResults) > 0 {
		result = c.surface.AcquireResults[0]
		c.surface.AcquireResults = c.surface.AcquireResults[1:]
		if result != driver.Success && result != driver.Suboptimal {
			return 0, result
		}
	}
	if c.stale() && !c.surface.SuboptimalOnResize {
		return 0, driver.OutOfDate
	}
	sem := signal.(*Semaphore)
	if sem.Signaled {
		c.surface.violate("acquire signals already signaled semaphore#%d", sem.ID)
	}
	sem.Signaled = true
	idx := c.next
	c.next = (c.next + 1) % uint32(c.Images)
	return idx, result
}

func (c *Swapchain) Present(imageIndex uint32, wait driver.Semaphore) driver.Result {
	c.surface.record("present swapchain#%d image#%d", c.ID, imageIndex)
	if c.Destroyed {
		c.surface.violate("present on destroyed swapchain#%d", c.ID)
	}
	sem := wait.(*Semaphore)
	if !sem.Signaled {
		c.surface.violate("present waits on unsignaled semaphore#%d", sem.ID)
	}
	sem.Signaled = false
	c.Presents = append(c.Presents, Present{Swapchain: c.ID, ImageIndex: imageIndex, Extent: c.Size})
	if c.stale() {
		if c.surface.SuboptimalOnResize {
			return driver.Suboptimal
		}
		return driver.OutOfDate
	}
	return driver.Success
}

func (c *Swapchain) NewRenderTarget(imageIndex int) (driver.RenderTarget, error) {
	if imageIndex < 0 || imageIndex >= c.Images {
		return nil, fmt.Errorf("image index %d out of range", imageIndex)
	}
	rt := &RenderTarget{Swapchain: c.ID, Image: imageIndex, Size: c.Size}
	c.Targets = append(c.Targets, rt)
	return rt, nil
}

func (c *Swapchain) Destroy() {
	c.surface.record("destroy swapchain#%d", c.ID)
	c.Destroyed = true
}

type RenderTarget struct {
	Swapchain int
	Image     int
	Size      driver.Extent
	Destroyed bool
}

func (r *RenderTarget) Extent() driver.Extent {
	return r.Size
}

func (r *RenderTarget) Destroy() {
	r.Destroyed = true
}
