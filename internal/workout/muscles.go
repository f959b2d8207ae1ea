package workout

// Muscle is one of the sixteen tracked muscle groups.
type Muscle string

const (
	Chest      Muscle = "Chest"
	Back       Muscle = "Back"
	Shoulders  Muscle = "Shoulders"
	Biceps     Muscle = "Biceps"
	Triceps    Muscle = "Triceps"
	Abs        Muscle = "Abs"
	LowerBack  Muscle = "Lower Back"
	Quadriceps Muscle = "Quadriceps"
	Hamstrings Muscle = "Hamstrings"
	Glutes     Muscle = "Glutes"
	Calves     Muscle = "Calves"
	Trapezius  Muscle = "Trapezius"
	Abductors  Muscle = "Abductors"
	Adductors  Muscle = "Adductors"
	Forearms   Muscle = "Forearms"
	Neck       Muscle = "Neck"
)

// Muscles lists every tracked muscle in display order.
var Muscles = []Muscle{
	Chest, Back, Shoulders, Biceps, Triceps, Abs, LowerBack, Quadriceps,
	Hamstrings, Glutes, Calves, Trapezius, Abductors, Adductors, Forearms, Neck,
}

var muscleSet = func() map[Muscle]struct{} {
	m := make(map[Muscle]struct{}, len(Muscles))
	for _, v := range Muscles {
		m[v] = struct{}{}
	}
	return m
}()

// IsMuscle reports whether name is a tracked muscle.
func IsMuscle(name string) bool {
	_, ok := muscleSet[Muscle(name)]
	return ok
}
