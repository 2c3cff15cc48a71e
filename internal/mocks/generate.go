package mocks

//go:generate mockery --name TelemetryStore --srcpkg github.com/aevon-lab/rules-engine/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
//go:generate mockery --name ActorStore --srcpkg github.com/aevon-lab/rules-engine/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
