// Package sidecar реализует контейнер-репортёр внешней задачи.
//
// Репортёр запускается рядом с основным контейнером и держит completion
// token. Когда основной контейнер завершается, платформа присылает
// репортёру SIGTERM; с этого момента у него есть около 30 секунд, чтобы:
//
//  1. запросить метаданные задачи и найти код выхода основного контейнера;
//  2. построить ссылку на его лог;
//  3. отправить ровно один отчёт: успех при коде 0, иначе NonZeroExitCode.
//
// Любая ошибка или паника до отчёта превращается в отчёт с категорией
// Unknown. Без отчёта ветка графа зависает навсегда.
package sidecar
