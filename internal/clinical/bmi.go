package clinical

import "github.com/iliyamo/egfr-calculator/internal/model"

// ComputeBMI returns weight / (height/100)^2.  ok is false when either input
// is absent or the height is not positive.
func ComputeBMI(heightCm, weightKg model.Optional[float64]) (bmi float64, ok bool) {
	h, hok := heightCm.Get()
	w, wok := weightKg.Get()
	if !hok || !wok || h <= 0 {
		return 0, false
	}
	m := h / 100
	return w / (m * m), true
}

// BMICategory labels a BMI value using the WHO adult bands.
func BMICategory(bmi float64) string {
	switch {
	case bmi < 18.5:
		return "Underweight"
	case bmi < 25:
		return "Normal weight"
	case bmi < 30:
		return "Overweight"
	}
	return "Obese"
}
