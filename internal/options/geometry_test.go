package options

import "testing"

func TestResolveGeometry(t *testing.T) {
	cases := []struct {
		name string
		spec Spec
		srcW int
		srcH int
		want Plan
	}{
		{
			name: "no dimensions means no work",
			spec: Spec{DevicePixelRatio: 1},
			srcW: 600, srcH: 400,
			want: Plan{},
		},
		{
			name: "clip width only derives height",
			spec: Spec{Width: 150, DevicePixelRatio: 1},
			srcW: 600, srcH: 400,
			want: Plan{ResizeWidth: 150, ResizeHeight: 100},
		},
		{
			name: "clip height only derives width",
			spec: Spec{Height: 200, DevicePixelRatio: 1},
			srcW: 600, srcH: 400,
			want: Plan{ResizeWidth: 300, ResizeHeight: 200},
		},
		{
			name: "clip both fits within box",
			spec: Spec{Width: 100, Height: 100, DevicePixelRatio: 1},
			srcW: 600, srcH: 400,
			want: Plan{ResizeWidth: 100, ResizeHeight: 67},
		},
		{
			name: "clip can upscale",
			spec: Spec{Width: 1200, DevicePixelRatio: 1},
			srcW: 600, srcH: 400,
			want: Plan{ResizeWidth: 1200, ResizeHeight: 800},
		},
		{
			name: "clip with background pads to box",
			spec: Spec{Width: 100, Height: 100, DevicePixelRatio: 1, Background: &Colour{R: 255, G: 255, B: 255}},
			srcW: 600, srcH: 400,
			want: Plan{ResizeWidth: 100, ResizeHeight: 67, CanvasWidth: 100, CanvasHeight: 100},
		},
		{
			name: "crop covers then crops to exact box",
			spec: Spec{Width: 100, Height: 100, Fit: FitCrop, DevicePixelRatio: 1},
			srcW: 600, srcH: 400,
			want: Plan{ResizeWidth: 150, ResizeHeight: 100, CropWidth: 100, CropHeight: 100},
		},
		{
			name: "crop matching ratio needs no overscan",
			spec: Spec{Width: 300, Height: 200, Fit: FitCrop, DevicePixelRatio: 1},
			srcW: 600, srcH: 400,
			want: Plan{ResizeWidth: 300, ResizeHeight: 200, CropWidth: 300, CropHeight: 200},
		},
		{
			name: "crop with dpr scales the target",
			spec: Spec{Width: 400, Height: 400, Fit: FitCrop, DevicePixelRatio: 2},
			srcW: 1600, srcH: 1200,
			want: Plan{ResizeWidth: 1067, ResizeHeight: 800, CropWidth: 800, CropHeight: 800},
		},
		{
			name: "max never upscales",
			spec: Spec{Width: 1200, Height: 800, Fit: FitMax, DevicePixelRatio: 1},
			srcW: 600, srcH: 400,
			want: Plan{ResizeWidth: 600, ResizeHeight: 400},
		},
		{
			name: "max downscales like clip",
			spec: Spec{Width: 300, Height: 200, Fit: FitMax, DevicePixelRatio: 1},
			srcW: 600, srcH: 400,
			want: Plan{ResizeWidth: 300, ResizeHeight: 200},
		},
		{
			name: "clamp always pads to box",
			spec: Spec{Width: 100, Height: 100, Fit: FitClamp, DevicePixelRatio: 1},
			srcW: 600, srcH: 400,
			want: Plan{ResizeWidth: 100, ResizeHeight: 67, CanvasWidth: 100, CanvasHeight: 100},
		},
		{
			name: "aspect ratio derives missing height",
			spec: Spec{Width: 400, AspectRatio: &AspectRatio{X: 4, Y: 3}, DevicePixelRatio: 1},
			srcW: 1000, srcH: 1000,
			want: Plan{ResizeWidth: 400, ResizeHeight: 300},
		},
		{
			name: "aspect ratio derives missing width",
			spec: Spec{Height: 300, AspectRatio: &AspectRatio{X: 4, Y: 3}, DevicePixelRatio: 1},
			srcW: 1000, srcH: 1000,
			want: Plan{ResizeWidth: 400, ResizeHeight: 300},
		},
		{
			name: "explicit dimensions override aspect ratio",
			spec: Spec{Width: 400, Height: 400, AspectRatio: &AspectRatio{X: 4, Y: 3}, Fit: FitCrop, DevicePixelRatio: 1},
			srcW: 800, srcH: 800,
			want: Plan{ResizeWidth: 400, ResizeHeight: 400, CropWidth: 400, CropHeight: 400},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.spec.ResolveGeometry(tc.srcW, tc.srcH)
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestResolveGeometryClipTouchesOneAxis(t *testing.T) {
	// Clip output must fit within the box with equality on at least one
	// axis, for a spread of box shapes.
	boxes := [][2]int{{100, 100}, {100, 300}, {300, 100}, {777, 13}}
	for _, box := range boxes {
		spec := Spec{Width: box[0], Height: box[1], DevicePixelRatio: 1}
		plan := spec.ResolveGeometry(640, 480)
		if plan.ResizeWidth > box[0] || plan.ResizeHeight > box[1] {
			t.Fatalf("box %v: plan %+v exceeds box", box, plan)
		}
		if plan.ResizeWidth != box[0] && plan.ResizeHeight != box[1] {
			t.Fatalf("box %v: plan %+v touches neither axis", box, plan)
		}
	}
}

func TestPlanMaxPixels(t *testing.T) {
	cases := []struct {
		name string
		plan Plan
		want int64
	}{
		{"zero plan", Plan{}, 0},
		{"resize only", Plan{ResizeWidth: 100, ResizeHeight: 80}, 8000},
		{
			// A cover resize for a crop can overscan well past the crop box.
			"resize intermediate dominates",
			Plan{ResizeWidth: 9000, ResizeHeight: 12000, CropWidth: 9000, CropHeight: 9000},
			108_000_000,
		},
		{
			"canvas dominates",
			Plan{ResizeWidth: 100, ResizeHeight: 67, CanvasWidth: 4000, CanvasHeight: 4000},
			16_000_000,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.plan.MaxPixels(); got != tc.want {
				t.Fatalf("MaxPixels = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestResolveGeometryMaxNeverExceedsSource(t *testing.T) {
	boxes := [][2]int{{10, 10}, {600, 400}, {601, 401}, {5000, 5000}}
	for _, box := range boxes {
		spec := Spec{Width: box[0], Height: box[1], Fit: FitMax, DevicePixelRatio: 1}
		plan := spec.ResolveGeometry(600, 400)
		if plan.ResizeWidth*plan.ResizeHeight > 600*400 {
			t.Fatalf("box %v: max upscaled to %+v", box, plan)
		}
	}
}
