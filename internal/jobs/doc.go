// Package jobs превращает шаги конфигурации деплоя в domain.Job.
//
// Основные компоненты:
//   - Registry: имя типа шага → конструктор
//   - NewFunctionCall / NewExternalTask: два конструктора, по одному на вид шага
//   - predefined.go: bump_versions, deploy_terraform, run_task, invoke_function
//   - template.go: рендеринг переопределений через text/template
//   - registrar.go: регистрация единиц выполнения (с дедупликацией и dry-run)
//   - Builder: шаги для всех окружений flow и ведущий шаг версий
//
// Пример использования:
//
//	b := jobs.NewBuilder(jobs.BuilderConfig{
//	    Registrar: jobs.NewCachingRegistrar(ecsClient, logger),
//	    Settings:  jobs.SettingsFromConfig(cfg),
//	    Info:      info,
//	})
//	envs, err := b.BuildEnvironments(ctx, dep.Flow, dep.Steps())
//	fetch, err := b.VersionFetch()
package jobs
